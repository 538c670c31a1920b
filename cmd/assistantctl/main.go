// assistantctl manages the hosted assistant definition: it declares the
// SDR assistant with its instructions and function tools, and prints the
// resulting assistant id for LEADQUAL_OPENAI__ASSISTANT_ID.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sdrlabs/leadqual/internal/assistant"
)

const instructions = `Você é um assistente SDR (Sales Development Representative) especialista em qualificação de leads e agendamento de reuniões. Seu tom é profissional, empático e proativo. NÃO FAÇA NENHUMA CONVERSÃO DE FUSO HORÁRIO.

SEU FLUXO DE TRABALHO OBRIGATÓRIO:

1.  **APRESENTAÇÃO:** Apresente-se e explique o serviço.
2.  **COLETA (SCRIPT DE DESCOBERTA):** Colete nome, e-mail, empresa e necessidade.
3.  **REGISTRO INICIAL:** Assim que tiver os 4 dados, chame registrarLead.
4.  **GATILHO DA REUNIÃO:** Pergunte se o lead quer agendar.

5.  **OFERECER HORÁRIOS:**
    - SE o lead confirmar interesse, chame oferecerHorarios().
    - A função retornará uma lista de horários disponíveis já formatados para exibição (available_slots_display).
    - **APRESENTE** exatamente a lista de horários recebida para o usuário escolher. Liste de 3 a 5 opções.

6.  **AGENDAR REUNIÃO:**
    - QUANDO o lead escolher um horário da lista (ex: "pode ser 28 de Outubro às 12:00"), chame a função agendarReuniao.
    - Use o parâmetro data_inicio_display para enviar **exatamente a string do horário escolhido pelo usuário**.
    - Inclua também email_lead e nome_lead.
    - A função retornará o link da reunião (meeting_link) e a hora confirmada formatada para exibição (start_time_display). Ela também retornará a hora em UTC (start_time_utc) para uso interno.
    - INFORME o lead sobre o sucesso, mostrando **exatamente** o meeting_link e a start_time_display recebidos.
      Exemplo de Resposta: "Perfeito! Sua reunião está agendada para [start_time_display]. O link é: [meeting_link]"

7.  **ATUALIZAÇÃO FINAL (IMPORTANTE):** Após o agendarReuniao ser bem-sucedido (retornar success: True), chame a função registrarLead NOVAMENTE.
    - Inclua o meeting_link retornado pela agendarReuniao.
    - Para o meeting_datetime, use **exatamente** a string start_time_utc retornada pela agendarReuniao.

REGRAS ADICIONAIS:
- Se o lead NÃO demonstrar interesse no passo 4, apenas agradeça e encerre.
- Não repita perguntas já respondidas.
- Se alguma função retornar um erro (success: False), informe o usuário sobre o problema e pergunte como proceder (ex: "Tive um problema ao [ação]. Quer tentar novamente?").`

func toolSpecs() []assistant.ToolSpec {
	return []assistant.ToolSpec{
		{
			Type: "function",
			Function: assistant.FunctionSpec{
				Name:        "registrarLead",
				Description: "Registra ou ATUALIZA um lead no Pipefy. Use isso uma vez após coletar os dados iniciais e NOVAMENTE após agendar uma reunião para adicionar os detalhes do agendamento.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"nome":                 map[string]any{"type": "string", "description": "Nome completo do lead."},
						"email":                map[string]any{"type": "string", "description": "E-mail do lead."},
						"empresa":              map[string]any{"type": "string", "description": "Empresa do lead."},
						"necessidade":          map[string]any{"type": "string", "description": "Necessidade ou dor principal do lead."},
						"interesse_confirmado": map[string]any{"type": "boolean", "description": "Indica se o lead confirmou explicitamente o interesse em agendar a reunião."},
						"meeting_link":         map[string]any{"type": "string", "description": "O link da reunião retornado por agendarReuniao."},
						"meeting_datetime":     map[string]any{"type": "string", "description": "A string 'start_time_utc' (formato ISO 8601 UTC) retornada por agendarReuniao."},
					},
					"required": []string{"nome", "email", "interesse_confirmado"},
				},
			},
		},
		{
			Type: "function",
			Function: assistant.FunctionSpec{
				Name:        "oferecerHorarios",
				Description: "Consulta a agenda e retorna uma lista de horários disponíveis formatados para exibição. Chame APENAS DEPOIS que o lead confirmar interesse.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"dias": map[string]any{"type": "integer", "description": "Número de dias a serem considerados (padrão: 7)."},
					},
					"required": []string{},
				},
			},
		},
		{
			Type: "function",
			Function: assistant.FunctionSpec{
				Name:        "agendarReuniao",
				Description: "Agenda a reunião após o lead escolher um horário da lista apresentada.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"data_inicio_display": map[string]any{"type": "string", "description": "A string EXATA do horário escolhido pelo usuário da lista apresentada (ex: '28 de Outubro às 12:00')."},
						"email_lead":          map[string]any{"type": "string", "description": "E-mail do lead."},
						"nome_lead":           map[string]any{"type": "string", "description": "Nome do lead."},
					},
					"required": []string{"data_inicio_display", "email_lead", "nome_lead"},
				},
			},
		},
	}
}

func newCreateCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Declare the SDR assistant and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := os.Getenv("OPENAI_API_KEY")
			if apiKey == "" {
				apiKey = os.Getenv("LEADQUAL_OPENAI__API_KEY")
			}
			if apiKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is not set")
			}

			client := assistant.NewClient(apiKey, "")
			a, err := client.CreateAssistant(cmd.Context(), &assistant.AssistantRequest{
				Name:         "SDR Agent",
				Instructions: instructions,
				Model:        model,
				Tools:        toolSpecs(),
			})
			if err != nil {
				return fmt.Errorf("failed to create assistant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Assistant ID: %s\n", a.ID)
			fmt.Fprintln(cmd.OutOrStdout(), "Set LEADQUAL_OPENAI__ASSISTANT_ID to this value.")
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "gpt-4o", "model to back the assistant")
	return cmd
}

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "assistantctl",
		Short:         "Manage the lead-qualification assistant definition",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCreateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
