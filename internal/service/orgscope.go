package service

// OrgScope — граница изоляции организаций (tenant isolation).
type OrgScope struct {
	superRole string
}

// NewOrgScope создаёт OrgScope. superRole — роль с доступом ко всем организациям;
// пустая строка отключает межорганизационный доступ.
func NewOrgScope(superRole string) *OrgScope {
	return &OrgScope{superRole: superRole}
}

// Check разрешает доступ, если организация не запрошена (глобальный эндпоинт),
// если среди ролей есть супер-роль, либо если организация токена совпадает с запрошенной.
func (s *OrgScope) Check(tokenOrg, requestedOrg string, roles []string) bool {
	if requestedOrg == "" {
		return true
	}

	if s.superRole != "" {
		for _, r := range roles {
			if r == s.superRole {
				return true
			}
		}
	}

	return tokenOrg != "" && tokenOrg == requestedOrg
}
