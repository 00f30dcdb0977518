package maintenance

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// IDENTITY NORMALIZER - technician names and aliases -> sector labels
// =============================================================================

// Sector is a canonical team label and the free-text aliases that map to it.
type Sector struct {
	Label   string   `mapstructure:"label" json:"label"`
	Aliases []string `mapstructure:"aliases" json:"aliases"`
}

// Normalizer maps technician labels to sector labels. It is safe for
// concurrent use; it holds no mutable state after construction.
type Normalizer struct {
	sectors []foldedSector
}

type foldedSector struct {
	label   string
	aliases []string
}

// NewNormalizer builds a normalizer. Sectors are matched in the given order;
// blank aliases are ignored.
func NewNormalizer(sectors []Sector) *Normalizer {
	n := &Normalizer{sectors: make([]foldedSector, 0, len(sectors))}
	for _, s := range sectors {
		fs := foldedSector{label: s.Label}
		for _, a := range s.Aliases {
			if f := Fold(a); f != "" {
				fs.aliases = append(fs.aliases, f)
			}
		}
		n.sectors = append(n.sectors, fs)
	}
	return n
}

// Canonical returns the sector whose alias is contained in name, ignoring
// case and accents. Unrecognised names are returned unchanged.
func (n *Normalizer) Canonical(name string) string {
	if n == nil || name == "" {
		return name
	}
	folded := Fold(name)
	for _, s := range n.sectors {
		for _, a := range s.aliases {
			if strings.Contains(folded, a) {
				return s.label
			}
		}
	}
	return name
}

// Sectors returns the configured labels in match order.
func (n *Normalizer) Sectors() []string {
	labels := make([]string, len(n.sectors))
	for i, s := range n.sectors {
		labels[i] = s.label
	}
	return labels
}

// Fold lowercases s, strips diacritics and collapses whitespace.
// Transformers and casers are stateful, so both are built per call.
func Fold(s string) string {
	// NFD splits "Ç" into "C" + combining cedilla; the mark is then dropped.
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// DefaultSectors is the sector table in use at deployment time. Production
// installs override it through configuration.
func DefaultSectors() []Sector {
	return []Sector{
		{Label: "Setor 3 GWSB e Vitor Hugo", Aliases: []string{"Victor Hugo Nascimento Soares", "Vitor Hugo Nascimento Soares", "GWSB"}},
		{Label: "Setor 1 Paco Ruhan e LUKREFRIGERAÇÃO", Aliases: []string{"Pako Ruhan", "LUKREFRIGERACAO"}},
		{Label: "Setor 5 RNCLIMATIZACAO e Robson", Aliases: []string{"Robson Roque Bernardo", "RN CLIMATIZACAO"}},
		{Label: "Setor 4 ADS e Wando", Aliases: []string{"Wanderley Souza da Silva", "ADS"}},
		{Label: "Setor 2 Renan e MVF", Aliases: []string{"Renan de Souza Miranda", "MVF Climatizacao"}},
	}
}
