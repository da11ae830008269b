// Package log provides the logging abstraction used by bulkship components.
//
// Components depend on the Logger interface only. A zerolog-backed
// implementation is provided for production use and a no-op logger is the
// library default, so embedding programs stay silent unless they opt in:
//
//	logger := log.NewZerologAdapter(log.Options{Level: "info", Format: "console"})
//	shipper, err := ship.New(cfg, ship.WithLogger(logger))
//
// Child loggers carry fixed fields, typically the component name:
//
//	l := logger.With(log.Component("sender"))
package log
