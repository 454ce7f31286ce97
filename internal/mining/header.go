package mining

import (
	"bytes"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/bardlex/gomc/pkg/errors"
)

// HeaderSize is the serialized length of a block header in bytes.
const HeaderSize = 80

// BuildHeader assembles the 80-byte little-endian block header for one
// candidate nonce. prevHashHex is the 64-character display-order hex of
// the previous block hash; merkleRoot is the 32-byte digest produced by
// the job's merkle function. Both are byte-reversed into wire order per
// header convention. Pure and stateless; malformed inputs yield an
// input error.
func BuildHeader(version uint32, prevHashHex string, merkleRoot []byte, nTime, nbits, nonce uint32) ([]byte, error) {
	// chainhash pads short hex strings, so length is checked explicitly
	if len(prevHashHex) != chainhash.MaxHashStringSize {
		return nil, errors.New(errors.ErrorTypeInput, "build_header",
			"previous hash must be 64 hex characters").
			WithContext("prev_hash_len", len(prevHashHex))
	}

	prevHash, err := chainhash.NewHashFromStr(prevHashHex)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "build_header",
			"malformed previous block hash").
			WithContext("prev_hash", prevHashHex)
	}

	if len(merkleRoot) != chainhash.HashSize {
		return nil, errors.New(errors.ErrorTypeInput, "build_header",
			"merkle root must be 32 bytes").
			WithContext("merkle_root_len", len(merkleRoot))
	}

	var merkle chainhash.Hash
	for i := 0; i < chainhash.HashSize; i++ {
		merkle[i] = merkleRoot[chainhash.HashSize-1-i]
	}

	header := wire.BlockHeader{
		Version:    int32(version),
		PrevBlock:  *prevHash,
		MerkleRoot: merkle,
		Timestamp:  time.Unix(int64(nTime), 0),
		Bits:       nbits,
		Nonce:      nonce,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := header.Serialize(buf); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "build_header",
			"header serialization failed")
	}

	return buf.Bytes(), nil
}
