package assistant

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SafeTables are the only tables generated SQL may read.
var SafeTables = map[string]string{
	"accounts_user":                "Usuários do sistema",
	"budget_budget":                "Orçamentos - contém informações sobre orçamentos anuais por centro gestor",
	"budget_budgetmovement":        "Movimentações orçamentárias - transferências entre orçamentos",
	"budgetline_budgetline":        "Linhas orçamentárias - detalhamento dos orçamentos",
	"budgetline_budgetlineversion": "Versões das linhas orçamentárias - histórico de alterações",
	"contract_contract":            "Contratos do sistema - contém informações sobre contratos, valores, datas, fiscais",
	"contract_contractinstallment": "Parcelas de contratos - pagamentos dos contratos",
	"contract_contractamendment":   "Aditivos contratuais - alterações nos contratos",
	"employee_employee":            "Funcionários - informações dos colaboradores e fiscais",
	"sector_direction":             "Diretorias da estrutura organizacional",
	"sector_management":            "Gerências subordinadas às diretorias",
	"sector_coordination":          "Coordenações subordinadas às gerências",
	"center_management_center":     "Centros gestores - unidades administrativas",
	"center_requesting_center":     "Centros solicitantes vinculados aos centros gestores",
	"aid_assistance":               "Auxílios - benefícios concedidos aos funcionários",
}

// SafeTableNames returns the whitelisted tables in name order.
func SafeTableNames() []string {
	names := make([]string, 0, len(SafeTables))
	for name := range SafeTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var forbiddenKeywords = []string{
	"DELETE", "DROP", "INSERT", "UPDATE", "ALTER", "CREATE", "TRUNCATE", "REPLACE", "ATTACH", "DETACH", "PRAGMA", "VACUUM",
}

// quotedName matches the identifier forms SQLite accepts: "x", `x`, [x] and bare words.
const quotedName = `(?:"(?:[^"]|"")*"|` + "`(?:[^`]|``)*`" + `|\[[^\]]*\]|[A-Za-z_][A-Za-z0-9_$]*)`

var (
	keywordPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)
	sourcePattern  = regexp.MustCompile(`(?i)\b(FROM|JOIN|IN)\b`)
	identPattern   = regexp.MustCompile(`^(?:''|` + quotedName + `)`)
)

// GuardError explains why a query was rejected.
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string {
	return e.Reason
}

func reject(format string, args ...interface{}) error {
	return &GuardError{Reason: fmt.Sprintf(format, args...)}
}

// stripLiterals removes comments and empties string literals. Quoted
// identifiers are kept verbatim because they still name tables.
func stripLiterals(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = len(query)
			} else {
				i += end
			}
			b.WriteByte(' ')
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				i = len(query)
			} else {
				i += end + 4
			}
			b.WriteByte(' ')
		case c == '\'':
			i = skipQuoted(query, i, '\'')
			b.WriteString("''")
		case c == '"' || c == '`':
			end := skipQuoted(query, i, c)
			b.WriteString(query[i:end])
			i = end
		case c == '[':
			end := skipBracket(query, i)
			b.WriteString(query[i:end])
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// skipQuoted returns the index just past the quoted token starting at i.
// A doubled quote character is an escaped quote.
func skipQuoted(s string, i int, quote byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != quote {
			continue
		}
		if j+1 < len(s) && s[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// unquote returns the lower-cased name inside an identifier token.
func unquote(ident string) string {
	if len(ident) >= 2 {
		switch first, last := ident[0], ident[len(ident)-1]; {
		case first == '"' && last == '"':
			ident = strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
		case first == '`' && last == '`':
			ident = strings.ReplaceAll(ident[1:len(ident)-1], "``", "`")
		case first == '[' && last == ']':
			ident = ident[1 : len(ident)-1]
		case first == '\'' && last == '\'':
			ident = ident[1 : len(ident)-1]
		}
	}
	return strings.ToLower(strings.TrimSpace(ident))
}

// ValidateSQL accepts a single read-only statement over whitelisted tables.
func ValidateSQL(query string) error {
	if strings.TrimSpace(query) == "" {
		return reject("Consulta SQL vazia")
	}
	clean := strings.TrimSpace(stripLiterals(query))
	clean = strings.TrimSpace(strings.TrimSuffix(clean, ";"))
	upper := strings.ToUpper(clean)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return reject("Apenas consultas SELECT são permitidas")
	}
	if strings.HasPrefix(upper, "WITH") && !strings.Contains(upper, "SELECT") {
		return reject("Apenas consultas SELECT são permitidas")
	}
	if m := keywordPattern.FindString(clean); m != "" {
		return reject("Comando %s não é permitido", strings.ToUpper(m))
	}
	if strings.Contains(clean, ";") {
		return reject("Apenas uma instrução SQL é permitida")
	}

	ctes := cteNames(clean)
	for _, table := range referencedTables(clean) {
		if table == "" {
			return reject("Nome de tabela inválido")
		}
		if _, ok := SafeTables[table]; !ok && !ctes[table] {
			return reject("Acesso à tabela %s não é permitido", table)
		}
	}
	return nil
}

// cteNames reads the names defined by a leading WITH clause.
func cteNames(clean string) map[string]bool {
	names := map[string]bool{}
	s := strings.TrimSpace(clean)
	if !hasWord(s, "WITH") {
		return names
	}
	s = trimSpace(s[len("WITH"):])
	if hasWord(s, "RECURSIVE") {
		s = trimSpace(s[len("RECURSIVE"):])
	}
	for {
		name := identPattern.FindString(s)
		if name == "" || name == "''" {
			return names
		}
		names[unquote(name)] = true
		s = trimSpace(s[len(name):])
		if strings.HasPrefix(s, "(") {
			s = trimSpace(s[closingParen(s):])
		}
		if !hasWord(s, "AS") {
			return names
		}
		s = trimSpace(s[len("AS"):])
		if hasWord(s, "NOT") {
			s = trimSpace(s[len("NOT"):])
		}
		if hasWord(s, "MATERIALIZED") {
			s = trimSpace(s[len("MATERIALIZED"):])
		}
		if !strings.HasPrefix(s, "(") {
			return names
		}
		s = trimSpace(s[closingParen(s):])
		if !strings.HasPrefix(s, ",") {
			return names
		}
		s = trimSpace(s[1:])
	}
}

// referencedTables lists every table named in a FROM list (each top-level
// comma starts a new source), after JOIN, and after IN. Subqueries are
// reached through their own FROM.
func referencedTables(clean string) []string {
	var out []string
	for _, loc := range sourcePattern.FindAllStringSubmatchIndex(clean, -1) {
		rest := clean[loc[1]:]
		switch strings.ToUpper(clean[loc[2]:loc[3]]) {
		case "FROM":
			out = append(out, fromList(fromSpan(rest))...)
		case "JOIN":
			out = append(out, leadingSource(rest)...)
		case "IN":
			if rest = trimSpace(rest); !strings.HasPrefix(rest, "(") {
				out = append(out, leadingSource(rest)...)
			}
		}
	}
	return out
}

// fromList returns the leading table of each comma-separated source.
func fromList(span string) []string {
	var out []string
	for _, source := range splitTopLevel(span) {
		out = append(out, leadingSource(source)...)
	}
	return out
}

// leadingSource reads the table or parenthesised source at the start of s.
// A parenthesised SELECT, WITH or VALUES is skipped; a parenthesised
// table list is read as a FROM list. A schema qualifier is reported too,
// so main.x or temp.x fails the whitelist.
func leadingSource(s string) []string {
	s = trimSpace(s)
	if strings.HasPrefix(s, "(") {
		end := closingParen(s)
		inner := trimSpace(strings.TrimSuffix(s[1:end], ")"))
		if hasWord(inner, "SELECT") || hasWord(inner, "WITH") || hasWord(inner, "VALUES") {
			return nil
		}
		return fromList(inner)
	}
	ident := identPattern.FindString(s)
	if ident == "" {
		return nil
	}
	out := []string{unquote(ident)}
	rest := trimSpace(s[len(ident):])
	if strings.HasPrefix(rest, ".") {
		if next := identPattern.FindString(trimSpace(rest[1:])); next != "" {
			out = append(out, unquote(next))
		}
	}
	return out
}

var clauseEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "LIMIT": true, "HAVING": true, "WINDOW": true,
	"UNION": true, "EXCEPT": true, "INTERSECT": true,
}

// fromSpan cuts s at the end of the FROM clause: a clause keyword or an
// unmatched closing parenthesis at depth zero.
func fromSpan(s string) string {
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '`' || c == '\'':
			i = skipQuoted(s, i, c)
			continue
		case c == '[':
			i = skipBracket(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			if depth == 0 {
				return s[:i]
			}
			depth--
		case depth == 0 && isIdentByte(c) && (i == 0 || !isIdentByte(s[i-1])):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			if clauseEnd[strings.ToUpper(s[i:j])] {
				return s[:i]
			}
			i = j
			continue
		}
		i++
	}
	return s
}

// splitTopLevel splits s on commas outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '`' || c == '\'':
			i = skipQuoted(s, i, c)
			continue
		case c == '[':
			i = skipBracket(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
		i++
	}
	return append(parts, s[start:])
}

// closingParen returns the index just past the parenthesis that closes s[0].
func closingParen(s string) int {
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '`' || c == '\'':
			i = skipQuoted(s, i, c)
			continue
		case c == '[':
			i = skipBracket(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return len(s)
}

func skipBracket(s string, i int) int {
	if end := strings.IndexByte(s[i:], ']'); end >= 0 {
		return i + end + 1
	}
	return len(s)
}

func hasWord(s, word string) bool {
	return len(s) >= len(word) && strings.EqualFold(s[:len(word)], word) &&
		(len(s) == len(word) || !isIdentByte(s[len(word)]))
}

func trimSpace(s string) string {
	return strings.TrimLeft(s, " \t\r\n")
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
