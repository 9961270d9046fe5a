// Package zfsdump is the traversal/dispatch layer: it walks an object
// set and prints each object through the per-type dumper its dn_type
// names (spec.md §2 "Traversal / dispatch", §4.6 "Per-type dump
// dispatch").
package zfsdump

// category names the shape of dumper a DMU type gets, matching
// spec.md §9's "fixed array of function pointers or an enum + match"
// re-expression of the source's bound-method dispatch table.
type category int

const (
	catNone category = iota
	catRaw           // hexdump fallback: no typed dumper named by spec.md
	catZAP
	catZPLDir
	catUint8
	catDSLDir
	catDSLDataset
	catBpobj
	catZnode
)

type typeInfo struct {
	name string
	cat  category
}

// dmuOTInfo mirrors dn_type -> (dumper, human-name) (spec.md §3 "DMU
// type table"). Indexed 0..54; RemapType handles dn_type>54 before
// indexing here (spec.md §9 "table ends at index 54").
var dmuOTInfo = [55]typeInfo{
	0:  {"none", catNone},
	1:  {"object directory", catZAP},
	2:  {"object array", catRaw},
	3:  {"packed nvlist", catRaw},
	4:  {"packed nvlist size", catRaw},
	5:  {"bpobj", catBpobj},
	6:  {"bpobj header", catRaw},
	7:  {"space map header", catRaw},
	8:  {"space map", catRaw},
	9:  {"intent log", catRaw},
	10: {"DMU dnode", catRaw},
	11: {"DMU objset", catRaw},
	12: {"DSL directory", catDSLDir},
	13: {"DSL directory child map", catZAP},
	14: {"DSL dataset snap map", catZAP},
	15: {"DSL props", catZAP},
	16: {"DSL dataset", catDSLDataset},
	17: {"ZFS znode", catZnode},
	18: {"ZFS V0 ACL", catRaw},
	19: {"ZFS plain file", catUint8},
	20: {"ZFS directory", catZPLDir},
	21: {"ZFS master node", catZAP},
	22: {"ZFS delete queue", catZAP},
	23: {"zvol object", catUint8},
	24: {"zvol prop", catZAP},
	25: {"other uint8[]", catRaw},
	26: {"other uint64[]", catRaw},
	27: {"other ZAP", catZAP},
	28: {"persistent error log", catZAP},
	29: {"SPA history", catRaw},
	30: {"SPA history offsets", catRaw},
	31: {"pool properties", catZAP},
	32: {"DSL permissions", catZAP},
	33: {"ZFS ACL", catRaw},
	34: {"ZFS SYSACL", catRaw},
	35: {"FUID table", catRaw},
	36: {"FUID table size", catRaw},
	37: {"DSL dataset next clones", catZAP},
	38: {"DSL scrub queue", catZAP},
	39: {"ZFS user/group used", catZAP},
	40: {"ZFS user/group quota", catZAP},
	41: {"snapshot refcount tags", catZAP},
	42: {"DDT ZAP algorithm", catZAP},
	43: {"DDT statistics", catRaw},
	44: {"System attributes", catRaw},
	45: {"SA master node", catZAP},
	46: {"SA attr registration", catZAP},
	47: {"SA attr layouts", catZAP},
	48: {"scan translations", catRaw},
	49: {"deduplicated block", catRaw},
	50: {"DSL deadlist map", catRaw},
	51: {"DSL deadlist map header", catRaw},
	52: {"DSL clones", catZAP},
	53: {"bpobj subobj", catRaw},
	54: {"user/group object accounting", catZAP},
}

// TypeName returns the human name dn_type is dumped under, after
// applying the same remap RemapType uses (spec.md §4.6 "Per-type dump
// dispatch").
func TypeName(dnType uint8) string {
	return dmuOTInfo[remapIndex(dnType)].name
}

// StreamsRawData reports whether dn_type's dumper is dump_uint8: it
// writes the object's file contents verbatim to its io.Writer rather
// than a structured decode, which is what makes a CLI's "refuse on a
// TTY" check (spec.md §6) apply to it.
func StreamsRawData(dnType uint8) bool {
	return dmuOTInfo[remapIndex(dnType)].cat == catUint8
}
