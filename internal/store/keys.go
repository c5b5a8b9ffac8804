package store

import (
	"encoding/binary"
	"fmt"
)

// Key layout, using human-readable ASCII prefixes plus binary-sortable
// suffixes:
//
//	d/{sourceChain}/{sourceTxIDHex}/{intraIndex} -> JSON DepositRecord   (primary row)
//	p/{destChain}/{createdAtBigEndian}/{primaryKey}   -> primaryKey      (pending index)
//	g/{destChain}/{updatedAtBigEndian}/{primaryKey}   -> primaryKey      (signed index, "g" for "aGing")

const (
	prefixDeposit = "d/"
	prefixPending = "p/"
	prefixSigned  = "g/"
)

func primaryKey(id Identity) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%09d", prefixDeposit, id.SourceChain, id.SourceTxID, id.IntraTxIndex))
}

func timeKey(nanos int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(nanos))
	return b
}

func pendingIndexKey(destChain string, createdAtNanos int64, pk []byte) []byte {
	key := append([]byte(prefixPending+destChain+"/"), timeKey(createdAtNanos)...)
	key = append(key, '/')
	key = append(key, pk...)
	return key
}

func signedIndexKey(destChain string, updatedAtNanos int64, pk []byte) []byte {
	key := append([]byte(prefixSigned+destChain+"/"), timeKey(updatedAtNanos)...)
	key = append(key, '/')
	key = append(key, pk...)
	return key
}

func pendingIndexPrefix(destChain string) []byte {
	return []byte(prefixPending + destChain + "/")
}

func signedIndexPrefix(destChain string) []byte {
	return []byte(prefixSigned + destChain + "/")
}

// prefixUpperBound returns the smallest key that sorts strictly after every
// key beginning with prefix, for use as an Iterator's exclusive end bound.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes; unbounded iteration
}
