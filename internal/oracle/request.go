package oracle

import (
	"fmt"

	"github.com/RMahshie/psychro/pkg/models"
)

const instructions = `You are reading a photo of a psychrometer (a dry-bulb / wet-bulb hygrometer).

Procedure:
1. Decide whether the target photo shows a psychrometer with two liquid-in-glass thermometers. If it does not, set isPsychrometer to false and both temperatures to 0.
2. Locate both liquid columns. The wet bulb is the thermometer whose bulb is wrapped in a wick or sits in a water reservoir; the other one is the dry bulb.
3. For each column, find the top of the liquid and read it against the graduation ticks at 0.2 degree resolution. Use the scale's own numbers, in degrees Celsius.
4. Cross-check: the wet bulb normally reads at or below the dry bulb. Re-read both columns if it does not, but report what you see.`

const trailer = `Report the values for the target photo only, as JSON with the fields isPsychrometer, dryTemp and wetTemp.`

// PartKind identifies the content of a request part.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one ordered element of an oracle request.
type Part struct {
	Kind  PartKind
	Text  string
	Image *models.Image
}

// Request is the logical oracle request; backends translate it to their wire format.
type Request struct {
	Parts []Part
}

// BuildRequest assembles instruction text, the optional exemplar with its
// accepted values, the target image and the trailing instruction, in that order.
func BuildRequest(image models.Image, exemplar *Exemplar) Request {
	parts := []Part{{Kind: PartText, Text: instructions}}

	if exemplar != nil {
		exemplarImage := exemplar.Image
		parts = append(parts,
			Part{Kind: PartText, Text: "Reference photo of the same instrument, already read and confirmed by the user:"},
			Part{Kind: PartImage, Image: &exemplarImage},
			Part{Kind: PartText, Text: AcceptedValues(exemplar.DryTemp, exemplar.WetTemp)},
			Part{Kind: PartText, Text: "Target photo:"},
		)
	}

	target := image
	parts = append(parts,
		Part{Kind: PartImage, Image: &target},
		Part{Kind: PartText, Text: trailer},
	)
	return Request{Parts: parts}
}

// AcceptedValues formats the confirmed values of an exemplar.
func AcceptedValues(dryTemp, wetTemp float64) string {
	return fmt.Sprintf("accepted values: dry=%.1f, wet=%.1f", dryTemp, wetTemp)
}
