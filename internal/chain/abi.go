package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Method names on the tank contract.
const (
	MethodIdea           = "idea"
	MethodDigest         = "digest"
	MethodDigestHash     = "digestHash"
	MethodLLMURL         = "llmUrl"
	MethodConfig         = "config"
	MethodConfigHash     = "configHash"
	MethodEvaluateAction = "evaluateAction"
	MethodDigestAction   = "digestAction"
	MethodHintAction     = "hintAction"
	MethodAddNote        = "addNote"
)

// tankABIJSON is the single source of truth for the tank contract surface the
// pipeline touches. The addNote argument order here is the order used on-chain.
const tankABIJSON = `[
  {"type":"function","name":"idea","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"digest","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"digestHash","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"llmUrl","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"config","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"configHash","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"evaluateAction","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"digestAction","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"hintAction","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"addNote","stateMutability":"nonpayable","inputs":[
    {"name":"contributor","type":"address"},
    {"name":"encryptedNote","type":"string"},
    {"name":"noteHash","type":"string"},
    {"name":"encryptedDigest","type":"string"},
    {"name":"newDigestHash","type":"string"},
    {"name":"ideaSignature","type":"bytes"},
    {"name":"score","type":"uint256"}
  ],"outputs":[]}
]`

var (
	tankABIOnce sync.Once
	tankABI     abi.ABI
	tankABIErr  error
)

// TankABI returns the parsed tank contract ABI.
func TankABI() (abi.ABI, error) {
	tankABIOnce.Do(func() {
		tankABI, tankABIErr = abi.JSON(strings.NewReader(tankABIJSON))
	})
	return tankABI, tankABIErr
}

// AddNoteArgs are the arguments of the addNote entry point.
type AddNoteArgs struct {
	Contributor     common.Address
	EncryptedNote   string
	NoteHash        string
	EncryptedDigest string
	NewDigestHash   string
	IdeaSignature   []byte
	Score           *big.Int
}

// PackAddNote ABI-encodes an addNote call, selector included.
func PackAddNote(args AddNoteArgs) ([]byte, error) {
	parsed, err := TankABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse tank ABI: %w", err)
	}

	score := args.Score
	if score == nil {
		score = new(big.Int)
	}
	if score.Sign() < 0 {
		return nil, fmt.Errorf("score must not be negative")
	}

	data, err := parsed.Pack(MethodAddNote,
		args.Contributor,
		args.EncryptedNote,
		args.NoteHash,
		args.EncryptedDigest,
		args.NewDigestHash,
		args.IdeaSignature,
		score,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack addNote: %w", err)
	}
	return data, nil
}

// AddNoteSelector returns the 4-byte selector of addNote.
func AddNoteSelector() ([]byte, error) {
	parsed, err := TankABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse tank ABI: %w", err)
	}
	return append([]byte(nil), parsed.Methods[MethodAddNote].ID...), nil
}

// UnpackAddNote decodes addNote calldata, selector included.
func UnpackAddNote(data []byte) (*AddNoteArgs, error) {
	parsed, err := TankABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse tank ABI: %w", err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}

	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown selector: %w", err)
	}
	if method.Name != MethodAddNote {
		return nil, fmt.Errorf("calldata invokes %s, not %s", method.Name, MethodAddNote)
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack addNote: %w", err)
	}
	if len(values) != 7 {
		return nil, fmt.Errorf("addNote decoded to %d values", len(values))
	}

	args := &AddNoteArgs{}
	var ok [7]bool
	args.Contributor, ok[0] = values[0].(common.Address)
	args.EncryptedNote, ok[1] = values[1].(string)
	args.NoteHash, ok[2] = values[2].(string)
	args.EncryptedDigest, ok[3] = values[3].(string)
	args.NewDigestHash, ok[4] = values[4].(string)
	args.IdeaSignature, ok[5] = values[5].([]byte)
	args.Score, ok[6] = values[6].(*big.Int)
	for i, good := range ok {
		if !good {
			return nil, fmt.Errorf("addNote argument %d has unexpected type %T", i, values[i])
		}
	}
	return args, nil
}
