package txbuild

import (
	"testing"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransaction_SignAndDecode(t *testing.T) {
	kp, err := keypair.Random()
	require.NoError(t, err)

	a := NewAssembler(decimal.Zero)
	ops, err := a.Lock(kp.Address(), decimal.NewFromInt(5), time.Now().Add(24*time.Hour), testAsset(t, "AQUA"))
	require.NoError(t, err)

	account := domain.AccountState{AccountID: kp.Address(), Sequence: 41}
	tx, err := NewTransaction(account, ops, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), tx.SequenceNumber())
	assert.Equal(t, int64(txnbuild.MinBaseFee), tx.BaseFee())

	signed, err := Sign(tx, network.TestNetworkPassphrase, kp)
	require.NoError(t, err)
	envelope, err := signed.Base64()
	require.NoError(t, err)

	decoded, err := FromBase64(envelope)
	require.NoError(t, err)
	require.Len(t, decoded.Operations(), 1)
	assert.Len(t, decoded.Signatures(), 1)
}

func TestNewTransaction_NoOperations(t *testing.T) {
	_, err := NewTransaction(domain.AccountState{AccountID: randomAddress(t)}, nil, BuildOptions{})
	assert.Error(t, err)
}

func TestFromBase64_Garbage(t *testing.T) {
	_, err := FromBase64("not-xdr")
	assert.Error(t, err)
}

func TestTouchesAsset(t *testing.T) {
	a := NewAssembler(decimal.Zero)
	account, market := randomAddress(t), randomAddress(t)
	ice := testAsset(t, "upvoteICE")
	aqua := testAsset(t, "AQUA")
	restricted := []domain.Asset{ice}

	iceVote, err := a.Vote(account, market, decimal.NewFromInt(1), time.Now(), ice)
	require.NoError(t, err)
	aquaVote, err := a.Vote(account, market, decimal.NewFromInt(1), time.Now(), aqua)
	require.NoError(t, err)
	iceClaim, err := a.Claim("00000000da0d57da7d4850e7fc10d2a9d0ebc731f7afb40574c03395b17d49149b91f5be", &ice)
	require.NoError(t, err)

	assert.True(t, TouchesAsset(iceVote, restricted))
	assert.False(t, TouchesAsset(aquaVote, restricted))
	assert.True(t, TouchesAsset(iceClaim, restricted))
	assert.False(t, TouchesAsset(iceVote, nil))
}
