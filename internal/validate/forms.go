package validate

// Login checks the sign-in form. Password strength is not re-checked here.
func Login(email, password string) error {
	v := &Validator{}
	v.Email("email", email)
	v.Required("password", password)
	return v.Err()
}

// Register checks the sign-up form.
func Register(email, password, name string) error {
	v := &Validator{}
	v.Len("name", "Name", name, 2, 100)
	v.Email("email", email)
	v.Password("password", password)
	return v.Err()
}

// Profile checks an optional-field profile update.
func Profile(name, email *string) error {
	v := &Validator{}
	if name != nil {
		v.Len("name", "Name", *name, 2, 100)
	}
	if email != nil {
		v.Email("email", *email)
	}
	return v.Err()
}

// SocialAccount checks the connect-account form.
func SocialAccount(platform, username string) error {
	v := &Validator{}
	v.OneOf("platform", platform, Platforms...)
	v.Required("username", username)
	return v.Err()
}
