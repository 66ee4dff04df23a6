// Package devicetoken issues and verifies signed tokens that let a
// remembered device skip later MFA challenges.
package devicetoken
