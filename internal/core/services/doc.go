// Package services implements the driving port interfaces.
// Services contain the conversation logic (classification, routing,
// retrieval and synthesis) and orchestrate calls to driven ports (adapters).
//
// Services depend only on ports, the logger and the metrics collectors.
package services
