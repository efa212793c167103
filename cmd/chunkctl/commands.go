package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danmuck/chunkwire/internal/chunker"
	"github.com/danmuck/chunkwire/internal/cipher"
	"github.com/danmuck/chunkwire/internal/transfer"
	"github.com/spf13/cobra"
)

func newCommandCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "command <text>...",
		Short: "Send one encrypted command and print the decrypted reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			reply, err := client.Command(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

func newUploadCmd(flags *rootFlags) *cobra.Command {
	var noCommit bool
	var verbose bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file as encrypted chunks and commit it on the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}
			var opts []transfer.Option
			if verbose {
				opts = append(opts, transfer.WithProgress(func(seq uint32, sent int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "chunk %d acknowledged (%d bytes sent)\n", seq, sent)
				}))
			}
			client, err := flags.client(opts...)
			if err != nil {
				return err
			}
			res, err := client.Upload(cmd.Context(), payload, !noCommit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sent %d bytes in %d chunks (%s)\n", res.Bytes, res.Chunks, res.Duration.Round(time.Millisecond))
			if res.Committed != "" {
				fmt.Fprintln(out, res.Committed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "send chunks without asking the relay to rebuild the file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each acknowledged chunk")
	return cmd
}

func newInspectCmd(flags *rootFlags) *cobra.Command {
	var seed uint64
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show how a file would be split without sending anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}
			var opts []chunker.Option
			if cmd.Flags().Changed("seed") {
				opts = append(opts, chunker.WithRand(rand.New(rand.NewPCG(seed, seed))))
			}
			ch, err := chunker.New(cfg.MinChunkSize, cfg.MaxChunkSize, opts...)
			if err != nil {
				return err
			}
			sizes := ch.Plan(len(payload))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "payload %d bytes, bounds [%d, %d], %d chunks\n",
				len(payload), cfg.MinChunkSize, cfg.MaxChunkSize, len(sizes))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tOFFSET\tSIZE")
			offset := 0
			for i, size := range sizes {
				fmt.Fprintf(tw, "%d\t%d\t%d\n", i, offset, size)
				offset += size
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed the size draws for a reproducible plan")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a 32-byte key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cipher.GenerateKey()
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), cipher.EncodeKey(key))
				return nil
			}
			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("key file already exists: %s (use --force)", out)
				}
			}
			if err := cipher.WriteKeyFile(out, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote key to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the key to this file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}
