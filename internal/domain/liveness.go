package domain

import "dexopt/internal/ir"

// Liveness is the set of registers live at a program point: a backward
// may-analysis over Powerset[ir.Reg] (the live-range renumbering uses the
// same Powerset type, over definition ids, for its reaching definitions).
type Liveness = Powerset[ir.Reg]

func LivenessBottom() Liveness            { return PowersetBottom[ir.Reg]() }
func LivenessOf(regs ...ir.Reg) Liveness  { return PowersetOf[ir.Reg](regs...) }
