package ingest

import (
	"strconv"

	"github.com/warp/maintenance-engine/maintenance"
)

// Canonical column names.
const (
	ColTechnician  = "technician"
	ColEquipmentID = "equipment_id"
	ColClient      = "client"
	ColDate        = "date"
)

// headerAliases maps folded header text to canonical names.
var headerAliases = map[string]string{
	"colaborador":    ColTechnician,
	"tecnico":        ColTechnician,
	"technician":     ColTechnician,
	"identificador":  ColEquipmentID,
	"equipment_id":   ColEquipmentID,
	"equipment id":   ColEquipmentID,
	"id equipamento": ColEquipmentID,
	"cliente":        ColClient,
	"client":         ColClient,
	"data":           ColDate,
	"date":           ColDate,
	"data da visita": ColDate,
	"data visita":    ColDate,
}

// canonicalHeader maps known headers to canonical names and keeps the rest
// verbatim. Repeated names get a numeric suffix so every column stays
// addressable.
func canonicalHeader(original []string) []string {
	out := make([]string, len(original))
	seen := make(map[string]int, len(original))
	for i, h := range original {
		name := h
		if c, ok := headerAliases[maintenance.Fold(h)]; ok {
			name = c
		}
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name += "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}
