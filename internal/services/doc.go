// Package services holds the error taxonomy shared by the engine's remote
// collaborators and the request-scoped context annotations used for logging.
package services
