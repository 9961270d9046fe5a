package zfsdmu

// RemapType implements the dn_type > 54 remap heuristic (spec.md
// §4.6, §9 "format-version-specific and not obviously documented;
// preserve the behavior verbatim"): types at or below 54 pass
// through unchanged; above that, only the low 5 bits are examined,
// and values 3 and 4 remap to the fixed indices 26 and 27.
func RemapType(dnType uint8) uint8 {
	if dnType <= 54 {
		return dnType
	}
	switch dnType & 0x1f {
	case 3:
		return 26
	case 4:
		return 27
	default:
		return dnType
	}
}
