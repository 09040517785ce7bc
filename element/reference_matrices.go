package element

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// GetRefMatrices returns the reference matrices of an element keyed by
// "<name>_<shortname>"
func GetRefMatrices(el ReferenceElement) (refMats map[string]mat.Matrix) {
	var (
		props = el.GetProperties()
	)

	nm := el.GetNodalModal()
	ro := el.GetReferenceOperators()
	sn := props.ShortName
	refMats = map[string]mat.Matrix{
		"V_" + sn:    nm.V,
		"Vinv_" + sn: nm.Vinv,
		"M_" + sn:    nm.M,
		"Minv_" + sn: nm.Minv,
		"Dr_" + sn:   ro.Dr,
	}

	return
}

// Summary formats the properties and reference matrix shapes of an element
func Summary(el ReferenceElement) string {
	var sb strings.Builder
	props := el.GetProperties()
	sb.WriteString(fmt.Sprintf("  Name: %s (%s)\n", props.Name, props.ShortName))
	sb.WriteString(fmt.Sprintf("  Type: %v\n", props.Type))
	sb.WriteString(fmt.Sprintf("  Order: %d\n", props.Order))
	sb.WriteString(fmt.Sprintf("  Nodes per element (Np): %d\n", props.Np))
	sb.WriteString(fmt.Sprintf("  Interior nodes (NIp): %d\n", props.NIp))

	mats := GetRefMatrices(el)
	names := make([]string, 0, len(mats))
	for name := range mats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if mats[name] == nil {
			continue
		}
		r, c := mats[name].Dims()
		sb.WriteString(fmt.Sprintf("  %s: %d×%d\n", name, r, c))
	}
	return sb.String()
}
