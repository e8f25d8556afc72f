// Package heap models the managed side of the native boundary: classes,
// methods, fields, class loaders, objects, weak references and the
// root-enumeration contract of the collector.
//
// The native boundary treats this package as an external collaborator. It
// looks classes and members up through narrow queries (FindMethod,
// SelectVirtual, FindField, LoadClass), invokes methods through
// Method.Invoke, and hands every root it owns to Collector.Collect. Objects
// are ordinary Go values; what the collector decides is weak reachability,
// which is what clears weak-global handles.
//
// Managed exceptions travel as *Throwable errors. Universe.Throw builds one
// from a well-known class and a message.
package heap
