package domain

// Role is the platform role carried in the access token.
type Role string

const (
	RoleCustomer    Role = "customer"
	RoleMerchant    Role = "merchant"
	RoleBeneficiary Role = "beneficiary"
	RoleAssociation Role = "association"
	RoleCollector   Role = "collector"
	RoleAdmin       Role = "admin"
)

// IsValid reports whether r is a known platform role.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleMerchant, RoleBeneficiary, RoleAssociation, RoleCollector, RoleAdmin:
		return true
	}
	return false
}
