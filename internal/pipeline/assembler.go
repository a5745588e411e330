package pipeline

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/internal/setup/config"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/json"
	"go.uber.org/zap"
)

// SystemPrompt is the persona instruction sent with every generation request.
const SystemPrompt = `Du bist eine Moderatorin auf einer Dating-Plattform und schreibst im Namen eines Profils mit einem Kunden.
Du antwortest immer wie ein echter Mensch: locker, warm, in Alltagssprache, per Du.
Du erwähnst niemals, dass du eine KI, ein Assistent oder ein Programm bist.
Du kommentierst niemals die Nachricht des Kunden oder deine eigene Rolle, du antwortest einfach.
Halte deine Antworten kurz (1-3 Sätze) und beende sie wenn möglich mit einer Gegenfrage.`

// promptExample is the in-context example shape injected into the prompt.
type promptExample struct {
	Kunde    string `json:"kunde"`
	Antwort  string `json:"antwort"`
	Schlecht bool   `json:"schlechtesBeispiel,omitempty"`
	Hinweis  string `json:"hinweis,omitempty"`
}

type asaPromptExample struct {
	Kundentyp    string `json:"kundentyp,omitempty"`
	LetztesThema string `json:"letztesThema,omitempty"`
	Nachricht    string `json:"nachricht"`
}

// Assembler renders the instruction document fed to the chat model.
type Assembler struct {
	minify     *minify.M
	exampleCap int
	logger     *zap.Logger
}

// NewAssembler creates an Assembler. A cap of 0 injects every selected
// example.
func NewAssembler(cfg *config.Assembler, logger *zap.Logger) *Assembler {
	m := minify.New()
	m.AddFunc("application/json", json.Minify)

	return &Assembler{
		minify:     m,
		exampleCap: cfg.ExampleCap,
		logger:     logger.Named("assembler"),
	}
}

// Build renders the prompt for a normal reply. The forbidden and preferred
// word blocks always come first because the validator treats the forbidden
// list as an absolute constraint.
func (a *Assembler) Build(
	message string, history []Turn, situations []string,
	cfg *policy.Config, examples []corpus.Example,
) (string, error) {
	var b strings.Builder

	a.writeWordBlocks(&b, cfg)
	a.writeSituations(&b, situations, cfg)
	a.writeGeneralRules(&b, cfg)

	if err := a.writeExamples(&b, examples); err != nil {
		return "", err
	}

	a.writeHistory(&b, history)

	b.WriteString("## AKTUELLE NACHRICHT\n")
	b.WriteString("Kunde: ")
	b.WriteString(message)
	b.WriteString("\n\nSchreibe jetzt deine Antwort als Moderatorin. Nur den Antworttext, nichts anderes.\n")

	return b.String(), nil
}

// BuildASA renders the prompt for a reactivation message. There is no
// customer message; the last conversation topic steers the opener instead.
func (a *Assembler) BuildASA(
	lastTopic string, history []Turn, cfg *policy.Config, examples []corpus.ASAExample,
) (string, error) {
	var b strings.Builder

	a.writeWordBlocks(&b, cfg)

	if instructions, ok := cfg.Situations.Get(policy.ASASituation); ok {
		b.WriteString("## SITUATION: ")
		b.WriteString(policy.ASASituation)
		b.WriteString("\n")
		b.WriteString(instructions.Instructions)
		b.WriteString("\n\n")
	}

	a.writeGeneralRules(&b, cfg)

	if len(examples) > 0 {
		prompt := make([]asaPromptExample, 0, len(examples))
		for i := range examples {
			prompt = append(prompt, asaPromptExample{
				Kundentyp:    examples[i].CustomerType,
				LetztesThema: examples[i].LastTopic,
				Nachricht:    examples[i].ASAMessage,
			})
		}

		if err := a.writeJSONBlock(&b, "## BEISPIELE FÜR REAKTIVIERUNGEN\n", prompt); err != nil {
			return "", err
		}
	}

	a.writeHistory(&b, history)

	b.WriteString("## AUFGABE\n")
	b.WriteString("Der Kunde hat länger nicht geschrieben. Schreibe eine kurze, neugierig machende Reaktivierungsnachricht.\n")

	if lastTopic != "" {
		b.WriteString("Letztes Gesprächsthema: ")
		b.WriteString(lastTopic)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func (a *Assembler) writeWordBlocks(b *strings.Builder, cfg *policy.Config) {
	if len(cfg.ForbiddenWords) > 0 {
		b.WriteString("!!! ABSOLUT VERBOTENE WÖRTER (höchste Priorität, niemals verwenden, auch nicht abgewandelt):\n")
		b.WriteString(strings.Join(cfg.ForbiddenWords, ", "))
		b.WriteString("\n\n")
	}

	if len(cfg.PreferredWords) > 0 {
		b.WriteString("!!! BEVORZUGTE WÖRTER (wenn passend natürlich einbauen):\n")
		b.WriteString(strings.Join(cfg.PreferredWords, ", "))
		b.WriteString("\n\n")
	}
}

func (a *Assembler) writeSituations(b *strings.Builder, situations []string, cfg *policy.Config) {
	for _, situation := range situations {
		rule, ok := cfg.Situations.Get(situation)
		if !ok {
			continue
		}

		b.WriteString("## SITUATION: ")
		b.WriteString(rule.ID)
		b.WriteString("\n")
		b.WriteString(rule.Instructions)
		b.WriteString("\n\n")
	}
}

func (a *Assembler) writeGeneralRules(b *strings.Builder, cfg *policy.Config) {
	if cfg.GeneralRules == "" {
		return
	}

	b.WriteString("## ALLGEMEINE REGELN\n")
	b.WriteString(cfg.GeneralRules)
	b.WriteString("\n\n")
}

func (a *Assembler) writeExamples(b *strings.Builder, examples []corpus.Example) error {
	if a.exampleCap > 0 && len(examples) > a.exampleCap {
		examples = examples[:a.exampleCap]
	}

	if len(examples) == 0 {
		return nil
	}

	prompt := make([]promptExample, 0, len(examples))

	for i := range examples {
		prompt = append(prompt, promptExample{
			Kunde:    examples[i].CustomerMessage,
			Antwort:  examples[i].ModeratorResponse,
			Schlecht: examples[i].IsNegativeExample,
			Hinweis:  examples[i].Explanation,
		})
	}

	return a.writeJSONBlock(b, "## BEISPIELE (Stil und Ton übernehmen, schlechte Beispiele vermeiden)\n", prompt)
}

func (a *Assembler) writeJSONBlock(b *strings.Builder, header string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize prompt examples: %w", err)
	}

	minified, err := a.minify.Bytes("application/json", data)
	if err != nil {
		return fmt.Errorf("failed to minify prompt examples: %w", err)
	}

	b.WriteString(header)
	b.Write(minified)
	b.WriteString("\n\n")

	return nil
}

func (a *Assembler) writeHistory(b *strings.Builder, history []Turn) {
	if len(history) == 0 {
		return
	}

	b.WriteString("## GESPRÄCHSVERLAUF\n")

	for _, turn := range history {
		if turn.Role == RoleAssistant {
			b.WriteString("Du: ")
		} else {
			b.WriteString("Kunde: ")
		}

		b.WriteString(turn.Content)
		b.WriteString("\n")
	}

	b.WriteString("\n")
}
