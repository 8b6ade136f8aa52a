package visit

import (
	"strings"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// ParseMedications reads one medication per line in the form
// "name, dose, frequency, duration". Lines with fewer than four
// comma-separated fields are dropped. Fields past the fourth are ignored.
func ParseMedications(text string) model.Medications {
	meds := model.Medications{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			continue
		}
		meds = append(meds, model.Medication{
			Name:      strings.TrimSpace(parts[0]),
			Dose:      strings.TrimSpace(parts[1]),
			Frequency: strings.TrimSpace(parts[2]),
			Duration:  strings.TrimSpace(parts[3]),
		})
	}
	return meds
}
