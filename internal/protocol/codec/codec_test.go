package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/danmuck/chunkwire/internal/chunker"
	"github.com/danmuck/chunkwire/internal/protocol"
	"github.com/danmuck/chunkwire/internal/testutil/fakes"
	"github.com/danmuck/chunkwire/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type helperT interface {
	require.TestingT
	Helper()
}

func newTestCodec(t helperT, c *fakes.Cipher, opts ...Option) *Codec {
	t.Helper()
	if c == nil {
		c = fakes.NewCipher()
	}
	cd, err := New(c, fakes.NewIDs("id"), opts...)
	require.NoError(t, err)
	return cd
}

func withData(encoded string) protocol.Envelope {
	var env protocol.Envelope
	env.SetData(encoded)
	return env
}

// passthroughCipher seals nothing, so an empty plaintext stays empty.
type passthroughCipher struct{}

func (passthroughCipher) Encrypt(p []byte) ([]byte, error) { return bytes.Clone(p), nil }
func (passthroughCipher) Decrypt(c []byte) ([]byte, error) { return bytes.Clone(c), nil }

func payloadOf(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.Uint32())
	}
	return out
}

func TestNewRejectsInvalidBounds(t *testing.T) {
	testlog.Start(t)

	_, err := New(fakes.NewCipher(), fakes.NewIDs("id"), WithBounds(10, 5))
	require.ErrorIs(t, err, chunker.ErrInvalidBounds)

	_, err = New(fakes.NewCipher(), fakes.NewIDs("id"), WithBounds(0, 5))
	require.ErrorIs(t, err, chunker.ErrInvalidBounds)

	cd := newTestCodec(t, nil)
	lo, hi := cd.Bounds()
	require.Equal(t, chunker.DefaultMinChunkSize, lo)
	require.Equal(t, chunker.DefaultMaxChunkSize, hi)
}

func TestPrepareCommandShape(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	cd := newTestCodec(t, c)

	env, err := cd.PrepareCommand("uname -a")
	require.NoError(t, err)
	require.NoError(t, env.Validate())
	require.Equal(t, protocol.ActionUploadChunk, env.Action)
	require.False(t, env.IsFileChunk())
	require.NotEqual(t, env.Metadata.UserID, env.Metadata.SessionID)

	raw, err := env.Ciphertext()
	require.NoError(t, err)
	plain, err := c.Decrypt(raw)
	require.NoError(t, err)
	require.Equal(t, "uname -a", string(plain))

	next, err := cd.PrepareCommand("uname -a")
	require.NoError(t, err)
	require.NotEqual(t, env.Metadata.UserID, next.Metadata.UserID)
	require.NotEqual(t, env.Metadata.SessionID, next.Metadata.SessionID)
}

func TestPrepareCommandEncryptFailure(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	c.FailEncryptAt = 1
	cd := newTestCodec(t, c)

	_, err := cd.PrepareCommand("whoami")
	require.ErrorIs(t, err, ErrEncode)
	require.ErrorIs(t, err, fakes.ErrInjected)
}

func TestCommandRoundTripProperty(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	cd := newTestCodec(t, c)

	rapid.Check(t, func(rt *rapid.T) {
		command := rapid.String().Draw(rt, "command")
		sealed, err := c.Encrypt([]byte(command))
		if err != nil {
			rt.Fatalf("encrypt: %v", err)
		}
		got, err := cd.ParseResponse(withData(base64.StdEncoding.EncodeToString(sealed)))
		if err != nil {
			rt.Fatalf("parse response: %v", err)
		}
		if got != command {
			rt.Fatalf("round trip mismatch: %q != %q", got, command)
		}
	})
}

func TestEmptyCommandRoundTripsWithEmptyCiphertext(t *testing.T) {
	testlog.Start(t)
	cd, err := New(passthroughCipher{}, fakes.NewIDs("id"))
	require.NoError(t, err)

	env, err := cd.PrepareCommand("")
	require.NoError(t, err)
	require.NoError(t, env.Validate())

	for _, f := range []protocol.Format{protocol.JSON, protocol.CBOR, protocol.TLV} {
		raw, err := f.Marshal(env)
		require.NoError(t, err, f.Name())
		decoded, err := f.Unmarshal(raw)
		require.NoError(t, err, f.Name())
		require.NoError(t, decoded.Validate(), f.Name())

		got, err := cd.ParseResponse(decoded)
		require.NoError(t, err, f.Name())
		require.Equal(t, "", got)
	}

	raw, err := protocol.JSON.Marshal(env)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"data":""`)
}

func TestParseResponseErrors(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	cd := newTestCodec(t, c)

	_, err := cd.ParseResponse(protocol.Envelope{})
	require.ErrorIs(t, err, ErrDecode)
	require.ErrorIs(t, err, protocol.ErrMissingData)

	_, err = cd.ParseResponse(withData("not base64!"))
	require.ErrorIs(t, err, ErrDecode)
	require.ErrorIs(t, err, protocol.ErrMalformedData)

	_, err = cd.ParseResponse(withData(base64.StdEncoding.EncodeToString([]byte("plaintext"))))
	require.ErrorIs(t, err, ErrDecode)
}

func TestPrepareFileTransferSequenceIntegrity(t *testing.T) {
	testlog.Start(t)
	cd := newTestCodec(t, nil, WithBounds(16, 64), WithRand(rand.New(rand.NewPCG(1, 2))))

	payload := payloadOf(5000, 7)
	envs, err := cd.PrepareFileTransfer(payload)
	require.NoError(t, err)
	require.NotEmpty(t, envs)

	seen := make(map[string]struct{}, 2*len(envs))
	for i, env := range envs {
		require.NoError(t, env.Validate())
		seq, ok := env.Sequence()
		require.True(t, ok)
		require.Equal(t, uint32(i), seq)
		for _, id := range []string{env.Metadata.UserID, env.Metadata.SessionID} {
			_, dup := seen[id]
			require.False(t, dup, "identifier %q reused", id)
			seen[id] = struct{}{}
		}
	}

	got, err := cd.ReconstructFile(envs)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestPrepareFileTransferDefaultBoundsExample(t *testing.T) {
	testlog.Start(t)
	cd := newTestCodec(t, nil)

	payload := payloadOf(2_000_000, 11)
	envs, err := cd.PrepareFileTransfer(payload)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(envs), 2)
	require.LessOrEqual(t, len(envs), 4)

	got, err := cd.ReconstructFile(envs)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))
}

func TestPrepareFileTransferEmptyPayload(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	cd := newTestCodec(t, c)

	envs, err := cd.PrepareFileTransfer(nil)
	require.NoError(t, err)
	require.Empty(t, envs)
	require.Zero(t, c.EncryptCalls())

	got, err := cd.ReconstructFile(envs)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestFileTransferStopsOnEncryptFailure(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	c.FailEncryptAt = 3
	cd := newTestCodec(t, c, WithBounds(8, 8))

	var yielded int
	var failure error
	for env, err := range cd.FileTransfer(payloadOf(80, 3)) {
		if err != nil {
			failure = err
			require.Equal(t, protocol.Envelope{}, env)
			continue
		}
		yielded++
	}
	require.Equal(t, 2, yielded)
	require.ErrorIs(t, failure, ErrEncode)
	require.Equal(t, 3, c.EncryptCalls())

	c.FailEncryptAt = 0
	_, err := cd.PrepareFileTransfer(payloadOf(80, 3))
	require.NoError(t, err)
}

func TestFileTransferEarlyBreak(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	cd := newTestCodec(t, c, WithBounds(4, 4))

	for _, err := range cd.FileTransfer(payloadOf(40, 1)) {
		require.NoError(t, err)
		break
	}
	require.Equal(t, 1, c.EncryptCalls())
}

func TestReconstructOrderIndependenceProperty(t *testing.T) {
	testlog.Start(t)

	rapid.Check(t, func(rt *rapid.T) {
		lo := rapid.IntRange(1, 32).Draw(rt, "min")
		hi := rapid.IntRange(lo, 64).Draw(rt, "max")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 1024).Draw(rt, "payload")
		seed := rapid.Uint64().Draw(rt, "seed")

		cd := newTestCodec(rt, nil, WithBounds(lo, hi), WithRand(rand.New(rand.NewPCG(seed, 1))))
		envs, err := cd.PrepareFileTransfer(payload)
		if err != nil {
			rt.Fatalf("prepare: %v", err)
		}
		shuffled := slices.Clone(envs)
		r := rand.New(rand.NewPCG(seed, 2))
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := cd.ReconstructFile(shuffled)
		if err != nil {
			rt.Fatalf("reconstruct: %v", err)
		}
		if !bytes.Equal(got, payload) {
			rt.Fatalf("payload mismatch after shuffle")
		}
	})
}

func TestReconstructDoesNotMutateInput(t *testing.T) {
	testlog.Start(t)
	cd := newTestCodec(t, nil, WithBounds(4, 8))

	envs, err := cd.PrepareFileTransfer(payloadOf(100, 5))
	require.NoError(t, err)
	slices.Reverse(envs)
	before := slices.Clone(envs)

	_, err = cd.ReconstructFile(envs)
	require.NoError(t, err)
	require.Equal(t, before, envs)
}

func TestReconstructRejectsMissingSequence(t *testing.T) {
	testlog.Start(t)
	cd := newTestCodec(t, nil, WithBounds(4, 8))

	envs, err := cd.PrepareFileTransfer(payloadOf(40, 9))
	require.NoError(t, err)
	cmd, err := cd.PrepareCommand("stray")
	require.NoError(t, err)

	_, err = cd.ReconstructFile(append(envs, cmd))
	require.ErrorIs(t, err, ErrMissingSequence)

	_, err = cd.ReconstructFile([]protocol.Envelope{cmd})
	require.ErrorIs(t, err, ErrMissingSequence)
}

func TestReconstructRejectsDuplicateAndGap(t *testing.T) {
	testlog.Start(t)
	cd := newTestCodec(t, nil, WithBounds(4, 4))

	envs, err := cd.PrepareFileTransfer(payloadOf(16, 4))
	require.NoError(t, err)
	require.Len(t, envs, 4)

	_, err = cd.ReconstructFile(append(slices.Clone(envs), envs[2]))
	require.ErrorIs(t, err, ErrDuplicateSequence)

	_, err = cd.ReconstructFile([]protocol.Envelope{envs[0], envs[1], envs[3]})
	require.ErrorIs(t, err, ErrSequenceGap)

	_, err = cd.ReconstructFile(envs[1:])
	require.ErrorIs(t, err, ErrSequenceGap)
}

func TestReconstructFailsWholeOnDecryptError(t *testing.T) {
	testlog.Start(t)
	c := fakes.NewCipher()
	cd := newTestCodec(t, c, WithBounds(4, 4))

	envs, err := cd.PrepareFileTransfer(payloadOf(12, 2))
	require.NoError(t, err)

	broken := slices.Clone(envs)
	broken[1].SetData(base64.StdEncoding.EncodeToString([]byte("garbage")))
	got, err := cd.ReconstructFile(broken)
	require.ErrorIs(t, err, ErrDecode)
	require.Nil(t, got)

	broken = slices.Clone(envs)
	broken[2].SetData("***")
	_, err = cd.ReconstructFile(broken)
	require.ErrorIs(t, err, ErrDecode)
	require.True(t, errors.Is(err, protocol.ErrMalformedData))
}

func TestSeededCodecIsReproducible(t *testing.T) {
	testlog.Start(t)

	sizes := func() []int {
		c := fakes.NewCipher()
		cd := newTestCodec(t, c, WithBounds(3, 50), WithRand(rand.New(rand.NewPCG(42, 42))))
		envs, err := cd.PrepareFileTransfer(payloadOf(1000, 1))
		require.NoError(t, err)
		out := make([]int, 0, len(envs))
		for _, env := range envs {
			raw, err := env.Ciphertext()
			require.NoError(t, err)
			out = append(out, len(raw))
		}
		return out
	}
	require.Equal(t, sizes(), sizes())
}

func TestSharedCodecConcurrentTransfers(t *testing.T) {
	testlog.Start(t)
	cd := newTestCodec(t, nil, WithBounds(8, 32), WithRand(rand.New(rand.NewPCG(5, 6))))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			payload := payloadOf(2048, seed)
			envs, err := cd.PrepareFileTransfer(payload)
			if err != nil {
				errs <- err
				return
			}
			got, err := cd.ReconstructFile(envs)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, payload) {
				errs <- errors.New("payload mismatch")
			}
		}(uint64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent transfer: %v", err)
	}
}

func TestPrepareResponseKeepsCorrelation(t *testing.T) {
	testlog.Start(t)
	cd := newTestCodec(t, nil)

	req, err := cd.PrepareCommand("status")
	require.NoError(t, err)
	reply, err := cd.PrepareResponse(req.IDs(), "ok")
	require.NoError(t, err)
	require.Equal(t, req.IDs(), reply.IDs())
	require.False(t, reply.IsFileChunk())

	text, err := cd.ParseResponse(reply)
	require.NoError(t, err)
	require.Equal(t, "ok", text)
}
