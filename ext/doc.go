// Implementing an Extension
//
//	type AuditExtension struct{}
//
//	func (e *AuditExtension) Name() string { return "audit" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *AuditExtension) OnStructureRemoved(ctx context.Context, kind header.Kind, name string, structID id.ID) error {
//	    log.Printf("%s %s (%s) removed", kind, name, structID)
//	    return nil
//	}
//
// # Header hooks
//
//   - [HeaderCreated]: this node stored a new queue or set header
//   - [HeaderConflict]: a create request disagreed with the stored header
//
// # Removal hooks
//
//   - [StructureRemoved]: a header removal was observed
//   - [RemovalRetrying]: a set data removal round raced a topology change
//   - [SetDataPurged]: this node purged its share of a removed set
//
// # Other hooks
//
//   - [Shutdown]: the manager is stopping
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
