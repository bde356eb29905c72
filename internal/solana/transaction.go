package solana

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

const SignatureLength = 64

var (
	ErrNoInstructions = errors.New("transaction has no instructions")
	ErrMissingSigner  = errors.New("missing signer")
)

// Hash is a recent blockhash.
type Hash [32]byte

func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != len(h) {
		return h, fmt.Errorf("invalid hash %q", s)
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Meta starts a read-only, non-signer account reference.
func Meta(pk PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk}
}

func (m AccountMeta) Writable() AccountMeta {
	m.IsWritable = true
	return m
}

func (m AccountMeta) Signer() AccountMeta {
	m.IsSigner = true
	return m
}

type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy (non-versioned) transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures [][]byte
	Message    Message
}

// NewTransaction compiles instructions into a legacy message paid by payer.
func NewTransaction(instructions []Instruction, blockhash Hash, payer PublicKey) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	type entry struct {
		meta  AccountMeta
		order int
	}
	index := map[PublicKey]*entry{}
	var entries []*entry
	add := func(m AccountMeta) {
		if e, ok := index[m.PublicKey]; ok {
			e.meta.IsSigner = e.meta.IsSigner || m.IsSigner
			e.meta.IsWritable = e.meta.IsWritable || m.IsWritable
			return
		}
		e := &entry{meta: m, order: len(entries)}
		index[m.PublicKey] = e
		entries = append(entries, e)
	}

	add(AccountMeta{PublicKey: payer, IsSigner: true, IsWritable: true})
	for _, ix := range instructions {
		for _, m := range ix.Accounts {
			add(m)
		}
		add(AccountMeta{PublicKey: ix.ProgramID})
	}

	rank := func(m AccountMeta) int {
		switch {
		case m.IsSigner && m.IsWritable:
			return 0
		case m.IsSigner:
			return 1
		case m.IsWritable:
			return 2
		default:
			return 3
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].meta.PublicKey == payer {
			return true
		}
		if entries[j].meta.PublicKey == payer {
			return false
		}
		ri, rj := rank(entries[i].meta), rank(entries[j].meta)
		if ri != rj {
			return ri < rj
		}
		return entries[i].order < entries[j].order
	})
	if len(entries) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(entries))
	}

	msg := Message{RecentBlockhash: blockhash}
	pos := make(map[PublicKey]uint8, len(entries))
	for i, e := range entries {
		pos[e.meta.PublicKey] = uint8(i)
		msg.AccountKeys = append(msg.AccountKeys, e.meta.PublicKey)
		switch rank(e.meta) {
		case 0:
			msg.Header.NumRequiredSignatures++
		case 1:
			msg.Header.NumRequiredSignatures++
			msg.Header.NumReadonlySignedAccounts++
		case 3:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}
	for _, ix := range instructions {
		ci := CompiledInstruction{ProgramIDIndex: pos[ix.ProgramID], Data: ix.Data}
		for _, m := range ix.Accounts {
			ci.Accounts = append(ci.Accounts, pos[m.PublicKey])
		}
		msg.Instructions = append(msg.Instructions, ci)
	}

	return &Transaction{
		Signatures: make([][]byte, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

func (m Message) Serialize() []byte {
	buf := []byte{m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts}
	buf = appendShortVecLen(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendShortVecLen(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendShortVecLen(buf, len(ix.Accounts))
		buf = append(buf, ix.Accounts...)
		buf = appendShortVecLen(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// Sign fills every required signature slot. All required signers must be
// supplied.
func (tx *Transaction) Sign(signers ...Keypair) error {
	msg := tx.Message.Serialize()
	byKey := make(map[PublicKey]Keypair, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}
	n := int(tx.Message.Header.NumRequiredSignatures)
	tx.Signatures = make([][]byte, n)
	for i := 0; i < n; i++ {
		key := tx.Message.AccountKeys[i]
		kp, ok := byKey[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
		tx.Signatures[i] = kp.Sign(msg)
	}
	return nil
}

func (tx *Transaction) Serialize() ([]byte, error) {
	buf := appendShortVecLen(nil, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		if len(sig) != SignatureLength {
			return nil, fmt.Errorf("signature %d not set", i)
		}
		buf = append(buf, sig...)
	}
	return append(buf, tx.Message.Serialize()...), nil
}

// Signature is the fee payer's signature, which identifies the transaction.
func (tx *Transaction) Signature() string {
	if len(tx.Signatures) == 0 || len(tx.Signatures[0]) != SignatureLength {
		return ""
	}
	return base58.Encode(tx.Signatures[0])
}

func appendShortVecLen(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}
