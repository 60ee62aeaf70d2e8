package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const defaultLogFile = "clickrec.log"

var (
	InfoLogger    = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	WarningLogger = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLogger   = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	Verbose       bool

	mu      sync.Mutex
	logFile *os.File
)

// Trace logs a debug message that only appears when verbose logging is enabled
func Trace(format string, v ...interface{}) {
	if Verbose {
		InfoLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// SetVerbose sets the verbose logging flag
func SetVerbose(verbose bool) {
	Verbose = verbose
}

// Init initializes the loggers, writing to clickrec.log in logDirectory
func Init(logDirectory string) error {
	return InitWithFile(logDirectory, defaultLogFile)
}

// InitWithFile initializes the loggers with a custom log file name.
// Output also goes to the console when one is attached.
func InitWithFile(logDirectory, logFileName string) error {
	if err := os.MkdirAll(logDirectory, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDirectory, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	var infoWriter, errorWriter io.Writer = f, f
	if hasConsole() {
		infoWriter = io.MultiWriter(os.Stdout, f)
		errorWriter = io.MultiWriter(os.Stderr, f)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	setWriters(infoWriter, infoWriter, errorWriter)
	return nil
}

// SetOutput sends all loggers to w. Used by tools and tests that do not want a log file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	setWriters(w, w, w)
}

func setWriters(info, warn, errw io.Writer) {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	InfoLogger = log.New(info, "INFO: ", flags)
	WarningLogger = log.New(warn, "WARN: ", flags)
	ErrorLogger = log.New(errw, "ERROR: ", flags)
}

func hasConsole() bool {
	return fileHasConsole(os.Stdout) || fileHasConsole(os.Stderr)
}

func fileHasConsole(f *os.File) bool {
	if f == nil {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
