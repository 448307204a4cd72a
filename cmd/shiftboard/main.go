// Command shiftboard runs the shiftboard API and its schema migrations.
//
// Usage:
//
//	shiftboard serve
//	shiftboard migrate
//
// Configuration comes from SHIFTBOARD_* environment variables, optionally
// loaded from a .env file.
package main

func main() {
	Execute()
}
