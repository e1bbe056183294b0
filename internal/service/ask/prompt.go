package ask

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/greasemonkey-ai/voicecore/internal/model/conversation"
	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
)

// answerBudget keeps responses short enough to synthesize and listen to in
// one sitting.
const answerBudget = 800

// historyLimit bounds how much prior conversation rides along with a
// question.
const historyLimit = 10

// buildSystemPrompt produces the assistant instructions, including how to
// phrase measurements so text-to-speech reads them out naturally.
func buildSystemPrompt(units vehicle.UnitPreferences) string {
	var b strings.Builder
	b.WriteString("You are GreaseMonkey AI, an expert automotive assistant.\n")
	b.WriteString("Provide concise, direct answers optimized for text-to-speech.\n")
	b.WriteString("Be quick and punctual - get straight to the point.\n")
	fmt.Fprintf(&b, "IMPORTANT: Keep responses under %d characters for optimal TTS performance.\n", answerBudget)
	b.WriteString("DO NOT repeat the car name or details in your answer - the user already knows what car they're asking about.\n")
	b.WriteString("Focus only on answering the specific question asked.\n")
	b.WriteString(unitInstructions(units))
	return b.String()
}

// unitInstructions spells out how each measurement family must be phrased.
// Abbreviations trip up the speech synthesizer, so units are always written
// in full.
func unitInstructions(units vehicle.UnitPreferences) string {
	lines := []string{
		"IMPORTANT FORMATTING RULES FOR TEXT-TO-SPEECH:",
		"- Never use abbreviations for units (no 'Nm', 'lb-ft', 'PSI', etc.)",
		"- Always spell out units completely for clear speech",
		"- Be concise but avoid technical abbreviations",
		"",
		"UNIT PREFERENCES:",
	}

	if units.Torque == vehicle.UnitNewtonMeters {
		lines = append(lines, "- Torque: Use newton meters (not Nm)")
	} else {
		lines = append(lines, "- Torque: Use pound feet (not lb-ft)")
	}

	switch units.Pressure {
	case vehicle.UnitBar:
		lines = append(lines, "- Pressure: Use bar")
	case vehicle.UnitKilopascals:
		lines = append(lines, "- Pressure: Use kilopascals (not kPa)")
	default:
		lines = append(lines, "- Pressure: Use pounds per square inch (not PSI)")
	}

	if units.Length == vehicle.UnitMetric {
		lines = append(lines, "- Length: Use millimeters, centimeters, meters (not mm, cm, m)")
	} else {
		lines = append(lines, "- Length: Use inches, feet (not in, ft)")
	}

	if units.Volume == vehicle.UnitMetric {
		lines = append(lines, "- Volume: Use liters, milliliters (not L, ml)")
	} else {
		lines = append(lines, "- Volume: Use quarts, gallons, ounces (not qt, gal, oz)")
	}

	if units.Temperature == vehicle.UnitCelsius {
		lines = append(lines, "- Temperature: Use degrees Celsius")
	} else {
		lines = append(lines, "- Temperature: Use degrees Fahrenheit")
	}

	if units.Weight == vehicle.UnitMetric {
		lines = append(lines, "- Weight: Use kilograms, grams (not kg, g)")
	} else {
		lines = append(lines, "- Weight: Use pounds, ounces (not lbs, oz)")
	}

	if units.Socket == vehicle.UnitMetric {
		lines = append(lines, "- Socket sizes: Use millimeter sockets (not mm)")
	} else {
		lines = append(lines, "- Socket sizes: Use inch sockets (not in)")
	}

	return strings.Join(lines, "\n")
}

// buildQuery appends the vehicle context to the spoken question so the model
// answers for the right car without the prompt restating it.
func buildQuery(question string, v *vehicle.Vehicle) string {
	if v == nil {
		return question
	}
	var b strings.Builder
	b.WriteString(question)
	fmt.Fprintf(&b, "\nCar: %s", v.DisplayName())
	if v.Engine != "" {
		fmt.Fprintf(&b, "\nEngine: %s", v.Engine)
	}
	if v.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", v.Notes)
	}
	return b.String()
}

// buildHistoryMessages converts the newest-first conversation slice into the
// chronological question/answer turns the model expects.
func buildHistoryMessages(messages []conversation.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	limit := len(messages)
	if limit > historyLimit {
		limit = historyLimit
	}

	history := make([]*schema.Message, 0, limit*2)
	for i := limit - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Question != "" {
			history = append(history, schema.UserMessage(msg.Question))
		}
		if msg.Answer != "" {
			history = append(history, schema.AssistantMessage(msg.Answer, nil))
		}
	}
	return history
}
