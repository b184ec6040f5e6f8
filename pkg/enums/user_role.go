package enums

// UserRole separates storefront customers from back-office staff.
type UserRole string

const (
	UserRoleCustomer UserRole = "CUSTOMER"
	UserRoleAdmin    UserRole = "ADMIN"
)

var validUserRoles = []UserRole{
	UserRoleCustomer,
	UserRoleAdmin,
}

func (r UserRole) IsValid() bool {
	for _, role := range validUserRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (r UserRole) String() string {
	return string(r)
}
