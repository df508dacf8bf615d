// Package domain defines the value types shared by the blueprint graph
// builder, the change detector and the export scheduler: blueprints, their
// placements, transform snapshots, change sets and the error taxonomy.
package domain
