package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
)

const interpretSystem = `Você é Alice, assistente de dados do sistema Minerva de gestão orçamentária e de contratos.
Sua tarefa é converter perguntas em português para consultas SQL no dialeto SQLite.

REGRAS:
1. Gere apenas consultas SELECT (ou WITH ... SELECT), em uma única instrução.
2. Use somente as tabelas descritas no esquema.
3. Datas são texto no formato YYYY-MM-DD; use strftime para extrair ano ou mês.
4. Valores monetários estão em reais (R$).
5. Prefira nomes legíveis (JOIN com tabelas relacionadas) em vez de ids.
6. Não use ponto e vírgula no meio da consulta.

Responda APENAS com um objeto JSON com os campos:
{"intent": "...", "sql": "...", "explanation": "...", "confidence": 0.0, "tables_used": ["..."], "potential_issues": ["..."]}`

const humanizeSystem = `Você é Alice, assistente de dados do sistema Minerva.
Explique o resultado de uma consulta em português do Brasil, de forma clara e objetiva.
Formate valores monetários como R$ 1.234,56. Não mencione SQL nem nomes de tabelas.`

// humanizeRowLimit bounds how many rows are sent back to the model.
const humanizeRowLimit = 20

func interpretPrompt(schema, question string) string {
	return fmt.Sprintf("%s\n\nPERGUNTA DO USUÁRIO: %s\n\nResponda somente com o JSON.", schema, question)
}

func humanizePrompt(question, query string, rows []Row) string {
	shown := rows
	if len(shown) > humanizeRowLimit {
		shown = shown[:humanizeRowLimit]
	}
	data, err := json.Marshal(shown)
	if err != nil {
		data = []byte("[]")
	}
	return fmt.Sprintf("PERGUNTA: %s\n\nCONSULTA EXECUTADA: %s\n\nRESULTADOS (%d linhas, mostrando %d):\n%s",
		question, query, len(rows), len(shown), data)
}

// parseInterpretation decodes the model's JSON answer, tolerating markdown
// code fences and text around the object.
func parseInterpretation(text string) (*Interpretation, error) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		if nl := strings.Index(body, "\n"); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = strings.TrimPrefix(body, "```")
		}
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var out Interpretation
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	out.SQL = strings.TrimSpace(out.SQL)
	return &out, nil
}
