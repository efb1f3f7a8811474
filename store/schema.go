package store

import (
	"bytes"
	"encoding/binary"
)

var (
	txPrefix       = []byte("t") // txPrefix + address -> transaction
	genesisPrefix  = []byte("g") // genesisPrefix + address -> chain genesis address
	lastPrefix     = []byte("l") // lastPrefix + genesis -> timestamp + last address
	historyPrefix  = []byte("c") // historyPrefix + genesis + timestamp -> address
	firstPrefix    = []byte("f") // firstPrefix + genesis -> first address
	lengthPrefix   = []byte("n") // lengthPrefix + genesis -> chain length
	typeLastPrefix = []byte("T") // typeLastPrefix + type -> timestamp + last address
	approvalPrefix = []byte("a") // approvalPrefix + proposal + signer key -> placeholder

	// meta data key should begin with 'm'
	mBurnedFees = []byte("mBurnedFees")
)

func tsbyte(ts int64) []byte {
	result := make([]byte, 8)
	binary.BigEndian.PutUint64(result, uint64(ts))
	return result
}

func bytets(data []byte) int64 {
	var result uint64
	buf := bytes.NewReader(data)
	binary.Read(buf, binary.BigEndian, &result)
	return int64(result)
}

// t..
func getTxKey(address []byte) []byte {
	return append(txPrefix, address...)
}

// g..
func getGenesisKey(address []byte) []byte {
	return append(genesisPrefix, address...)
}

// l..
func getLastKey(genesis []byte) []byte {
	return append(lastPrefix, genesis...)
}

// c..
func getHistoryKey(genesis []byte, ts int64) []byte {
	return append(historyPrefix, append(genesis, tsbyte(ts)...)...)
}

func getHistoryPrefix(genesis []byte) []byte {
	return append(historyPrefix, genesis...)
}

// f..
func getFirstKey(genesis []byte) []byte {
	return append(firstPrefix, genesis...)
}

// n..
func getLengthKey(genesis []byte) []byte {
	return append(lengthPrefix, genesis...)
}

// T.
func getTypeLastKey(txType uint8) []byte {
	return append(typeLastPrefix, txType)
}

// a..
func getApprovalKey(proposal []byte, signer []byte) []byte {
	return append(approvalPrefix, append(proposal, signer...)...)
}

// a value under lastPrefix or typeLastPrefix: timestamp then address
func packRef(address []byte, ts int64) []byte {
	return append(tsbyte(ts), address...)
}

func unpackRef(data []byte) ([]byte, int64) {
	address := make([]byte, len(data)-8)
	copy(address, data[8:])
	return address, bytets(data[:8])
}
