package detector

import "strings"

const (
	markerCreate   = "Instruction: Create"
	markerMetadata = "Metadata"
	markerMintTo   = "Instruction: MintTo"
	markerBuy      = "Instruction: Buy"
)

// IsLaunch reports whether one transaction's logs describe a token launch:
// a Create instruction that is not a metadata create, a MintTo and a Buy.
func IsLaunch(logs []string) bool {
	var create, mintTo, buy bool
	for _, line := range logs {
		switch {
		case strings.Contains(line, markerCreate) && !strings.Contains(line, markerMetadata):
			create = true
		case strings.Contains(line, markerMintTo):
			mintTo = true
		case strings.Contains(line, markerBuy):
			buy = true
		}
		if create && mintTo && buy {
			return true
		}
	}
	return false
}
