// Package core provides the building blocks of the connector pipeline.
//
// This package holds everything the pipeline needs that is independent of
// connector specifications and transport: the Table data unit, the tool
// registry, the error taxonomy and the run limiter. It can be used by the
// HTTP server, the CLI or tests without modification.
//
// # Tables
//
// A [Table] is an ordered sequence of rows with a dynamic column set. Each
// row carries a stable key (its position in the source dataset), so results
// of independent transform chains can be merged by row:
//
//	t := core.NewTable([]core.Row{{"id": 1}, {"id": 2}})
//	t, _ = t.WithColumn("person_ID", func(i int, r core.Row) (any, error) {
//	    return r["id"], nil
//	})
//
// Tables are values. WithColumn and Filter return new tables and never modify
// their receiver.
//
// # Tool Registry
//
// Transforms are registered at init time using [Register]. Each [Tool]
// declares its parameters so a step's params can be checked with
// [Tool.Bind] before the pipeline touches any data:
//
//	core.Register(core.Tool{
//	    Name:   "map_field",
//	    Params: []core.ParamSpec{{Name: "source", Required: true}, {Name: "target", Required: true}},
//	    Apply:  mapField,
//	})
//
// Registering a name twice replaces the earlier tool and logs a conflict.
//
// # Error Handling
//
// Pipeline failures are [*Error] values classified by [Kind]. Kinds double as
// failure envelope statuses. [MapError] turns any error into a
// [UserMessage] with a support code.
package core
