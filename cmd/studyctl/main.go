// Command studyctl summarizes, quizzes and answers questions about local
// documents, and runs a pomodoro timer in the terminal.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
