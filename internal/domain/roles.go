package domain

// RoleMapping maps a canonical workflow role, as written in the transition
// catalog, to every user-role spelling that satisfies it.
type RoleMapping map[string][]string

// DefaultRoleMapping returns the spellings accumulated in production user
// records, including the Thai variants. Callers get a fresh copy.
func DefaultRoleMapping() RoleMapping {
	return RoleMapping{
		"Head of Department": {"Head of Department", "HOD", "Department Head", "หัวหน้าแผนก"},
		"Accountant":         {"Accountant", "Accounting", "นักบัญชี"},
		"Finance Manager":    {"Finance Manager", "Finance", "ผู้จัดการฝ่ายการเงิน"},
		"IT":                 {"IT", "IT Support", "ฝ่ายไอที"},
		"Admin":              {"Admin", "Administrator", "ผู้ดูแลระบบ"},
	}
}
