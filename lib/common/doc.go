// Package common holds the pieces shared by the libraries and the command
// line interface: the logger factory that plugs into the dragonboat logger
// abstraction, and the configuration structs of the engine and the registry
// simulation.
//
// Every package obtains its logger with logger.GetLogger("<name>"). Until
// InitLoggers installs CreateLogger as the factory, the dragonboat default
// logger is used.
package common
