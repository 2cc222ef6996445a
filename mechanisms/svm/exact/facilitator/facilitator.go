// Package facilitator validates the instruction shape of an SVM exact
// payment transaction: real wallets routinely prepend compute-budget
// instructions and append a memo or a Lighthouse assertion alongside the
// required SPL transfer, so the facilitator must tell "one extra
// allow-listed instruction" apart from "a second, unrelated transfer
// smuggled into the same transaction".
package facilitator

import (
	"errors"

	solana "github.com/gagliardetto/solana-go"

	"github.com/x402-foundation/x402/go/mechanisms/svm"
)

const (
	// MinInstructions and MaxInstructions bound a well-formed exact-scheme
	// transaction: at minimum the transfer plus the two compute-budget
	// instructions most wallets always attach; at most the transfer, two
	// compute-budget instructions, an ATA-creation instruction, a memo, and
	// a Lighthouse assertion.
	MinInstructions = 3
	MaxInstructions = 6
)

// ErrTransactionInstructionsLength is returned when a transaction's
// instruction count falls outside [MinInstructions, MaxInstructions].
const ErrTransactionInstructionsLength = "invalid_exact_solana_payload_transaction_instructions_length"

// ErrUnexpectedProgram is returned when an instruction belongs to a program
// that is neither the token program nor one of the allow-listed optional
// programs.
const ErrUnexpectedProgram = "invalid_exact_solana_payload_unexpected_program"

// allowedOptionalPrograms are programs permitted alongside the required
// transfer instruction: compute-budget (fee tuning), the associated-token
// program (destination ATA creation), Memo, and Lighthouse (client-side
// balance assertions).
var allowedOptionalPrograms = map[string]bool{
	svm.ComputeBudgetProgramAddress:    true,
	svm.AssociatedTokenProgramAddress:  true,
	svm.MemoProgramAddress:             true,
	svm.LighthouseProgramAddress:       true,
}

// ValidateInstructionShape checks that tx carries between MinInstructions
// and MaxInstructions instructions, and that every instruction other than
// transferIndex belongs to an allow-listed optional program.
func ValidateInstructionShape(tx *solana.Transaction, transferIndex int) error {
	n := len(tx.Message.Instructions)
	if n < MinInstructions || n > MaxInstructions {
		return errors.New(ErrTransactionInstructionsLength)
	}

	for i, inst := range tx.Message.Instructions {
		if i == transferIndex {
			continue
		}
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			return errors.New(ErrUnexpectedProgram)
		}
		programID := tx.Message.AccountKeys[inst.ProgramIDIndex].String()
		if !allowedOptionalPrograms[programID] {
			return errors.New(ErrUnexpectedProgram)
		}
	}
	return nil
}
