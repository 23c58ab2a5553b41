package chain

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"lukechampine.com/uint128"
)

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePool(t *testing.T) {
	raw := lbPairLayout{
		Discriminator: lbPairDiscriminator,
		ActiveID:      -1234,
		BinStep:       25,
		TokenXMint:    solana.NewWallet().PublicKey(),
		TokenYMint:    solana.NewWallet().PublicKey(),
		ReserveX:      solana.NewWallet().PublicKey(),
		ReserveY:      solana.NewWallet().PublicKey(),
	}
	data := encode(t, &raw)
	if len(data) != 216 {
		t.Fatalf("unexpected layout size: %d", len(data))
	}
	// reserve_y ends the decoded prefix; trailing fields are ignored
	data = append(data, make([]byte, 600)...)

	address := solana.NewWallet().PublicKey()
	pool, err := DecodePool(address, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pool.ActiveID != -1234 || pool.BinStep != 25 {
		t.Fatalf("unexpected pool params: %+v", pool)
	}
	if !pool.TokenYMint.Equals(raw.TokenYMint) || !pool.ReserveX.Equals(raw.ReserveX) {
		t.Fatalf("unexpected pool keys: %+v", pool)
	}
	if !pool.Address.Equals(address) {
		t.Fatalf("address not carried")
	}

	data[0] ^= 0xff
	if _, err := DecodePool(address, data); err == nil {
		t.Fatalf("expected discriminator mismatch")
	}
}

func TestDecodePosition(t *testing.T) {
	raw := positionV2Layout{
		Discriminator: positionV2Discriminator,
		LbPair:        solana.NewWallet().PublicKey(),
		Owner:         solana.NewWallet().PublicKey(),
		LowerBinID:    -80,
		UpperBinID:    -11,
	}
	uint128.From64(500).PutBytes(raw.LiquidityShares[0][:])
	uint128.New(0, 1).PutBytes(raw.LiquidityShares[69][:])
	data := encode(t, &raw)
	if len(data) != 7920 {
		t.Fatalf("unexpected layout size: %d", len(data))
	}

	address := solana.NewWallet().PublicKey()
	position, obs, err := DecodePosition(address, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if position.LowerBinID != -80 || position.UpperBinID != -11 || !position.Owner.Equals(raw.Owner) {
		t.Fatalf("unexpected position: %+v", position)
	}
	if len(obs.LiquidBins) != 2 || obs.LiquidBins[0] != -80 || obs.LiquidBins[1] != -11 {
		t.Fatalf("unexpected liquid bins: %v", obs.LiquidBins)
	}
	if obs.FeesPending {
		t.Fatalf("no fees expected")
	}

	raw.LiquidityShares = [positionBins][16]byte{}
	raw.FeeInfos[3].FeeYPending = 7
	_, obs, err = DecodePosition(address, encode(t, &raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !obs.Drained() || !obs.FeesPending {
		t.Fatalf("expected drained position with pending fees: %+v", obs)
	}
}

type fakeReader struct {
	failures int
	calls    int
	accounts map[solana.PublicKey]*rpc.Account
}

func (f *fakeReader) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("429 too many requests")
	}
	acc, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: acc}, nil
}

func TestTokenProgramOfRetriesAndCaches(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	reader := &fakeReader{
		failures: 2,
		accounts: map[solana.PublicKey]*rpc.Account{
			mint: {Owner: solana.Token2022ProgramID, Data: rpc.DataBytesOrJSONFromBytes(make([]byte, 82))},
		},
	}
	c := newClient(reader, ClientConfig{MaxRetries: 3, RetryBackoff: time.Millisecond})

	owner, err := c.TokenProgramOf(context.Background(), mint)
	if err != nil {
		t.Fatalf("token program: %v", err)
	}
	if !owner.Equals(solana.Token2022ProgramID) {
		t.Fatalf("unexpected owner: %s", owner)
	}
	if _, err := c.TokenProgramOf(context.Background(), mint); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if reader.calls != 3 {
		t.Fatalf("expected 3 reads, got %d", reader.calls)
	}
}

func TestMissingAccountIsNotRetried(t *testing.T) {
	reader := &fakeReader{accounts: map[solana.PublicKey]*rpc.Account{}}
	c := newClient(reader, ClientConfig{Commitment: rpc.CommitmentFinalized, MaxRetries: 5, RetryBackoff: time.Millisecond, RequestsPerSecond: 50})

	_, err := c.GetPool(context.Background(), solana.NewWallet().PublicKey())
	if !errors.Is(err, rpc.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("expected a single read, got %d", reader.calls)
	}
}

func TestObservePosition(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	raw := positionV2Layout{Discriminator: positionV2Discriminator, LowerBinID: 0, UpperBinID: 5}
	uint128.From64(1).PutBytes(raw.LiquidityShares[2][:])
	reader := &fakeReader{accounts: map[solana.PublicKey]*rpc.Account{
		address: {Data: rpc.DataBytesOrJSONFromBytes(encode(t, &raw))},
	}}
	c := newClient(reader, ClientConfig{})

	obs, err := c.ObservePosition(context.Background(), address)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(obs.LiquidBins) != 1 || obs.LiquidBins[0] != 2 {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}
