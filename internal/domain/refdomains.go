package domain

import "dexopt/internal/ir"

// StringDomain tracks a CONST_STRING value exactly or collapses to Top.
type StringDomain = ConstantAbstractDomain[ir.StringRef]

// SingletonObjectDomain tracks the static field an SGET is known to read a
// singleton instance from (the "this field holds exactly one object
// identity for the program's lifetime" pattern, e.g. enum values).
type SingletonObjectDomain = ConstantAbstractDomain[ir.FieldRef]

// ConstantClassDomain tracks a CONST_CLASS value exactly.
type ConstantClassDomain = ConstantAbstractDomain[ir.TypeRef]
