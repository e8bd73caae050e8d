package template

import (
	"sort"
	"strings"
)

// Tokens substituted into the provisioning templates.
const (
	TokenVMName               = "__VM_NAME__"
	TokenISOPath              = "__ISO_PATH__"
	TokenVHDPath              = "__VHD_PATH__"
	TokenDiskSizeGB           = "__DISK_SIZE_GB__"
	TokenMemoryGB             = "__MEMORY_GB__"
	TokenCPUCount             = "__CPU_COUNT__"
	TokenGPUName              = "__GPU_NAME__"
	TokenSwitchName           = "__SWITCH_NAME__"
	TokenUsername             = "__USERNAME__"
	TokenPassword             = "__PASSWORD__"
	TokenAutoLogon            = "__AUTO_LOGON__"
	TokenGPUAllocationPercent = "__GPU_ALLOCATION_PERCENT__"
)

// Placeholders maps a token to its literal replacement. Values are inserted
// verbatim, without any escaping.
type Placeholders map[string]string

// Apply replaces every supplied token in a single pass. Tokens that have no
// entry are left as they are.
func (p Placeholders) Apply(text string) string {
	if len(p) == 0 {
		return text
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, p[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Only returns the subset of p whose keys are listed.
func (p Placeholders) Only(keys ...string) Placeholders {
	out := make(Placeholders, len(keys))
	for _, k := range keys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}
