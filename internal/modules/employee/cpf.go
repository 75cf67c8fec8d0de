package employee

import "github.com/aristath/minerva/internal/utils"

// NormalizeCPF strips punctuation from a CPF.
func NormalizeCPF(cpf string) string {
	return utils.OnlyDigits(cpf)
}

// ValidCPF reports whether cpf (digits only) has 11 digits, is not a
// repeated digit and carries correct check digits.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}
	same := true
	for i := 1; i < 11; i++ {
		if cpf[i] != cpf[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}
	return checkDigit(cpf[:9], 10) == int(cpf[9]-'0') && checkDigit(cpf[:10], 11) == int(cpf[10]-'0')
}

func checkDigit(digits string, weight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (weight - i)
	}
	d := (sum * 10) % 11
	if d == 10 {
		return 0
	}
	return d
}
