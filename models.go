package main

// Form values echoed back into a page after a failed submit. Passwords are
// never echoed.

type loginForm struct {
	Username string
}

type registerForm struct {
	Username string
	Email    string
}

type postForm struct {
	Title   string
	Content string
}
