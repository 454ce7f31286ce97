// Package jobsource constructs mining jobs from upstream inputs: block
// templates delivered by a collaborator, and ZMQ block notifications
// that signal when the current job is stale.
package jobsource

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bardlex/gomc/internal/mining"
	"github.com/bardlex/gomc/pkg/errors"
)

// minerTag marks coinbases produced by this miner.
var minerTag = []byte("/GOMC/")

// extranonceSize is the gap left in the coinbase script for the
// extranonce pair (4 bytes each).
const extranonceSize = 8

// FromTemplate builds an immutable mining job from a getblocktemplate
// result. The job's merkle function splices the lane's extranonce blob
// into the prepared coinbase and folds the coinbase txid through the
// template's merkle branch.
func FromTemplate(template *btcjson.GetBlockTemplateResult, poolAddress string, extranonce1 uint32, params *chaincfg.Params) (*mining.Job, error) {
	if template == nil {
		return nil, errors.New(errors.ErrorTypeInput, "from_template", "template cannot be nil")
	}

	bits, err := strconv.ParseUint(template.Bits, 16, 32)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "from_template",
			"malformed bits field").
			WithContext("bits", template.Bits)
	}

	if template.CoinbaseValue == nil {
		return nil, errors.New(errors.ErrorTypeInput, "from_template",
			"template has no coinbase value")
	}

	coinb1, coinb2, err := buildCoinbaseParts(template.Height, *template.CoinbaseValue, poolAddress, params)
	if err != nil {
		return nil, err
	}

	txids := make([]chainhash.Hash, 0, len(template.Transactions))
	for _, tx := range template.Transactions {
		id := tx.TxID
		if id == "" {
			id = tx.Hash
		}
		hash, err := chainhash.NewHashFromStr(id)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInput, "from_template",
				"malformed transaction id").
				WithContext("txid", id)
		}
		txids = append(txids, *hash)
	}

	branch := coinbaseBranch(txids)

	merkleFn := func(coinbase []byte) []byte {
		// The lane's coinbase blob is a length prefix plus the
		// extranonce pair; only the pair is spliced in.
		extranonce := coinbase
		if len(extranonce) > extranonceSize {
			extranonce = extranonce[len(extranonce)-extranonceSize:]
		}

		full := make([]byte, 0, len(coinb1)+extranonceSize+len(coinb2))
		full = append(full, coinb1...)
		full = append(full, extranonce...)
		full = append(full, coinb2...)

		root := chainhash.DoubleHashH(full)
		for _, sibling := range branch {
			concat := make([]byte, 0, 2*chainhash.HashSize)
			concat = append(concat, root[:]...)
			concat = append(concat, sibling[:]...)
			root = chainhash.DoubleHashH(concat)
		}

		return root[:]
	}

	jobID := fmt.Sprintf("tmpl-%d-%s", template.Height, template.Bits)

	return mining.NewJob(
		jobID,
		uint32(template.Version),
		template.PreviousHash,
		merkleFn,
		uint32(template.CurTime),
		uint32(bits),
		extranonce1,
	)
}

// buildCoinbaseParts prepares the serialized coinbase transaction split
// around an 8-byte extranonce gap. The script carries the BIP 34 block
// height, the miner tag, and the gap.
func buildCoinbaseParts(blockHeight, coinbaseValue int64, poolAddress string, params *chaincfg.Params) ([]byte, []byte, error) {
	heightScript, err := txscript.NewScriptBuilder().AddInt64(blockHeight).Script()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInput, "build_coinbase",
			"failed to build height script")
	}

	prefix := append(heightScript, minerTag...)
	fullScript := append(append([]byte{}, prefix...), make([]byte, extranonceSize)...)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{},
			Index: 0xffffffff,
		},
		SignatureScript: fullScript,
		Sequence:        0xffffffff,
	})

	addr, err := btcutil.DecodeAddress(poolAddress, params)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInput, "build_coinbase",
			"failed to decode payout address").
			WithContext("address", poolAddress)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInput, "build_coinbase",
			"failed to build output script")
	}
	tx.AddTxOut(&wire.TxOut{
		Value:    coinbaseValue,
		PkScript: pkScript,
	})

	buf := bytes.NewBuffer(make([]byte, 0, 256))
	if err := tx.Serialize(buf); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInput, "build_coinbase",
			"failed to serialize coinbase")
	}
	serialized := buf.Bytes()

	// Locate the extranonce gap inside the serialized transaction:
	// version(4) + input count(1) + prevout(36) + script varint + prefix
	scriptStart := 4 + 1 + 36 + 1
	if len(fullScript) >= 253 {
		scriptStart = 4 + 1 + 36 + 3
	}
	split := scriptStart + len(prefix)

	if split+extranonceSize > len(serialized) {
		return nil, nil, errors.New(errors.ErrorTypeInput, "build_coinbase",
			"coinbase split point out of range")
	}

	coinb1 := append([]byte{}, serialized[:split]...)
	coinb2 := append([]byte{}, serialized[split+extranonceSize:]...)
	return coinb1, coinb2, nil
}

// coinbaseBranch computes the merkle authentication path for the
// coinbase (index zero) given the template's transaction ids.
func coinbaseBranch(txids []chainhash.Hash) []chainhash.Hash {
	var branch []chainhash.Hash

	// Level hashes excluding the coinbase slot; the coinbase's sibling
	// at each level is the first entry of the remaining level.
	level := append([]chainhash.Hash{}, txids...)

	for len(level) > 0 {
		branch = append(branch, level[0])

		if len(level) == 1 {
			break
		}

		// Fold the rest of the level pairwise, duplicating the last
		// entry when odd, to form the next level's non-coinbase side
		rest := level[1:]
		next := make([]chainhash.Hash, 0, (len(rest)+1)/2)
		for i := 0; i < len(rest); i += 2 {
			left := rest[i]
			right := left
			if i+1 < len(rest) {
				right = rest[i+1]
			}
			concat := make([]byte, 0, 2*chainhash.HashSize)
			concat = append(concat, left[:]...)
			concat = append(concat, right[:]...)
			next = append(next, chainhash.DoubleHashH(concat))
		}
		level = next
	}

	return branch
}
