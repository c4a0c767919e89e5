package facade

import (
	"context"
	"fmt"

	amerrors "github.com/aman-cerp/agentmem/internal/errors"
	"github.com/aman-cerp/agentmem/internal/store"
)

func (f *Facade) mutateMemory(ctx context.Context, action string, args Args) Result {
	switch action {
	case "create_entity":
		return f.createEntity(ctx, args)
	case "add_observation":
		return f.addObservation(ctx, args)
	case "create_relation":
		return f.createRelation(ctx, args)
	case "delete_entity":
		return f.deleteEntity(ctx, args)
	case "invalidate_observation":
		return f.invalidateObservation(ctx, args)
	case "invalidate_relationship":
		return f.invalidateRelationship(ctx, args)
	case "start_session":
		return f.startSession(args)
	case "stop_session":
		return f.stopSession()
	case "start_task":
		return f.startTask(args)
	case "stop_task":
		return f.stopTask()
	case "run_transaction":
		return f.runTransaction(ctx, args)
	default:
		return errResult(errUnknownAction("mutate_memory", action))
	}
}

func (f *Facade) createEntity(ctx context.Context, args Args) Result {
	name := args.str("name")
	if name == "" {
		return errResult(amerrors.Validation("create_entity requires a non-empty name"))
	}
	e := &store.Entity{
		ID:       f.NewID(),
		Name:     name,
		Category: args.str("category"),
		Kind:     args.str("kind"),
		Metadata: args.strMap("metadata"),
		Validity: store.Validity{AssertedAt: now(), Assertive: true},
	}
	if err := f.Relational.SaveEntity(ctx, e); err != nil {
		return errResult(amerrors.Storage("save entity", err))
	}
	if err := f.Indexer.Reindex(ctx, e.ID); err != nil {
		return errResult(amerrors.Embedding("index new entity", err))
	}
	return ok(map[string]any{"entity_id": e.ID})
}

func (f *Facade) addObservation(ctx context.Context, args Args) Result {
	entityID := args.str("entity_id")
	text := args.str("text")
	if entityID == "" || text == "" {
		return errResult(amerrors.Validation("add_observation requires entity_id and text"))
	}
	if e, err := f.Relational.GetEntity(ctx, entityID, now()); err != nil {
		return errResult(amerrors.Storage("load entity", err))
	} else if e == nil {
		return errResult(amerrors.NotFound("entity " + entityID + " not found"))
	}

	vec, err := f.Embedder.Embed(ctx, text)
	if err != nil {
		vec = make([]float32, f.Embedder.Dimensions())
	}

	sessionID, taskID := args.str("session_id"), args.str("task_id")
	if sessionID == "" && taskID == "" {
		sessionID, taskID = f.activeContext()
	}

	o := &store.Observation{
		ID:        f.NewID(),
		EntityID:  entityID,
		Text:      text,
		Embedding: vec,
		SessionID: sessionID,
		TaskID:    taskID,
		Validity:  store.Validity{AssertedAt: now(), Assertive: true},
	}
	if err := f.Relational.SaveObservation(ctx, o); err != nil {
		return errResult(amerrors.Storage("save observation", err))
	}
	if err := f.Indexer.Reindex(ctx, entityID); err != nil {
		return errResult(amerrors.Embedding("reindex entity after observation", err))
	}
	return ok(map[string]any{"observation_id": o.ID})
}

func (f *Facade) createRelation(ctx context.Context, args Args) Result {
	fromID, toID := args.str("from_id"), args.str("to_id")
	if fromID == "" || toID == "" {
		return errResult(amerrors.Validation("create_relation requires from_id and to_id"))
	}
	if fromID == toID {
		return errResult(amerrors.Validation("relationship cannot be a self-loop"))
	}
	if e, err := f.Relational.GetEntity(ctx, fromID, now()); err != nil {
		return errResult(amerrors.Storage("load entity", err))
	} else if e == nil {
		return errResult(amerrors.NotFound("entity " + fromID + " not found"))
	}
	if e, err := f.Relational.GetEntity(ctx, toID, now()); err != nil {
		return errResult(amerrors.Storage("load entity", err))
	} else if e == nil {
		return errResult(amerrors.NotFound("entity " + toID + " not found"))
	}
	strength := args.floatVal("strength")
	if strength == 0 {
		strength = 1.0
	}
	confidence := args.floatVal("confidence")
	if confidence == 0 {
		confidence = 1.0
	}
	if strength < 0 || strength > 1 || confidence < 0 || confidence > 1 {
		return errResult(amerrors.Validation("strength and confidence must be in [0,1]"))
	}

	r := &store.Relationship{
		ID:           f.NewID(),
		FromID:       fromID,
		ToID:         toID,
		RelationType: args.str("relation_type"),
		Strength:     strength,
		Confidence:   confidence,
		Metadata:     args.strMap("metadata"),
		Validity:     store.Validity{AssertedAt: now(), Assertive: true},
	}
	if err := f.Relational.SaveRelationship(ctx, r); err != nil {
		return errResult(amerrors.Storage("save relationship", err))
	}
	return ok(map[string]any{"relationship_id": r.ID})
}

// deleteEntity retracts id along with every observation and incident
// relationship still asserted on it, in a single transaction (spec §3
// Lifecycle), so nothing visible after the call resolves to a retracted
// entity (invariant P2).
func (f *Facade) deleteEntity(ctx context.Context, args Args) Result {
	id := args.str("entity_id")
	if id == "" {
		return errResult(amerrors.Validation("delete_entity requires entity_id"))
	}

	err := f.Relational.WithTx(ctx, func(ctx context.Context, tx store.BatchWriter) error {
		at := now()

		obs, err := tx.GetObservationsByEntity(ctx, id, at)
		if err != nil {
			return amerrors.Storage("load observations", err)
		}
		for _, o := range obs {
			if err := tx.RetractObservation(ctx, o.ID, at); err != nil {
				return amerrors.Storage("retract observation", err)
			}
		}

		outgoing, err := tx.GetRelationshipsFrom(ctx, id, at)
		if err != nil {
			return amerrors.Storage("load outgoing relationships", err)
		}
		incoming, err := tx.GetRelationshipsTo(ctx, id, at)
		if err != nil {
			return amerrors.Storage("load incoming relationships", err)
		}
		for _, r := range append(outgoing, incoming...) {
			if err := tx.RetractRelationship(ctx, r.ID, at); err != nil {
				return amerrors.Storage("retract relationship", err)
			}
		}

		return tx.RetractEntity(ctx, id, at)
	})
	if err != nil {
		return errResult(err)
	}

	if err := f.Indexer.Remove(ctx, id); err != nil {
		return errResult(amerrors.Embedding("remove entity from indexes", err))
	}
	return ok(map[string]any{"entity_id": id})
}

func (f *Facade) invalidateObservation(ctx context.Context, args Args) Result {
	id := args.str("observation_id")
	if id == "" {
		return errResult(amerrors.Validation("invalidate_observation requires observation_id"))
	}
	if err := f.Relational.RetractObservation(ctx, id, now()); err != nil {
		return errResult(amerrors.Storage("retract observation", err))
	}
	if entityID := args.str("entity_id"); entityID != "" {
		if err := f.Indexer.Reindex(ctx, entityID); err != nil {
			return errResult(amerrors.Embedding("reindex entity after invalidation", err))
		}
	}
	return ok(map[string]any{"observation_id": id})
}

func (f *Facade) invalidateRelationship(ctx context.Context, args Args) Result {
	id := args.str("relationship_id")
	if id == "" {
		return errResult(amerrors.Validation("invalidate_relationship requires relationship_id"))
	}
	if err := f.Relational.RetractRelationship(ctx, id, now()); err != nil {
		return errResult(amerrors.Storage("retract relationship", err))
	}
	return ok(map[string]any{"relationship_id": id})
}

func (f *Facade) startSession(args Args) Result {
	id := args.str("session_id")
	if id == "" {
		id = f.NewID()
	}
	f.setSession(id)
	return ok(map[string]any{"session_id": id})
}

func (f *Facade) stopSession() Result {
	f.setSession("")
	return ok(nil)
}

func (f *Facade) startTask(args Args) Result {
	id := args.str("task_id")
	if id == "" {
		id = f.NewID()
	}
	f.setTask(id)
	return ok(map[string]any{"task_id": id})
}

func (f *Facade) stopTask() Result {
	f.setTask("")
	return ok(nil)
}

// runTransaction batches several writes into one transaction, validating
// every op (entity existence, self-loop rejection, strength/confidence
// range) before any of them commit, and rolling all of them back if any op
// fails (spec §4.1). Each op is a create_entity, add_observation, or
// create_relation payload shaped like its mutate_memory counterpart, plus
// a "kind" field naming which one it is; ops execute in order and may
// reference an entity created earlier in the same batch.
func (f *Facade) runTransaction(ctx context.Context, args Args) Result {
	rawOps, _ := args["ops"].([]any)
	if len(rawOps) == 0 {
		return errResult(amerrors.Validation("run_transaction requires a non-empty ops list"))
	}

	results := make([]map[string]any, len(rawOps))
	err := f.Relational.WithTx(ctx, func(ctx context.Context, tx store.BatchWriter) error {
		created := make(map[string]bool)
		for i, raw := range rawOps {
			opMap, isObj := raw.(map[string]any)
			if !isObj {
				return amerrors.Validation(fmt.Sprintf("op %d must be an object", i))
			}
			out, err := f.applyTxOp(ctx, tx, Args(opMap), created)
			if err != nil {
				return err
			}
			results[i] = out
		}
		return nil
	})
	if err != nil {
		return errResult(err)
	}
	for i, raw := range rawOps {
		opMap, _ := raw.(map[string]any)
		id, _ := results[i]["entity_id"].(string)
		if id == "" {
			id, _ = opMap["entity_id"].(string)
		}
		if id == "" {
			continue
		}
		if err := f.Indexer.Reindex(ctx, id); err != nil {
			return errResult(amerrors.Embedding("reindex entity after transaction", err))
		}
	}
	return ok(map[string]any{"results": results})
}

func (f *Facade) applyTxOp(ctx context.Context, tx store.BatchWriter, op Args, created map[string]bool) (map[string]any, error) {
	switch op.str("kind") {
	case "create_entity":
		return f.txCreateEntity(ctx, tx, op, created)
	case "add_observation":
		return f.txAddObservation(ctx, tx, op, created)
	case "create_relation":
		return f.txCreateRelation(ctx, tx, op, created)
	default:
		return nil, amerrors.Validation(fmt.Sprintf("unknown transaction op kind %q", op.str("kind")))
	}
}

func (f *Facade) txCreateEntity(ctx context.Context, tx store.BatchWriter, op Args, created map[string]bool) (map[string]any, error) {
	name := op.str("name")
	if name == "" {
		return nil, amerrors.Validation("create_entity requires a non-empty name")
	}
	e := &store.Entity{
		ID:       f.NewID(),
		Name:     name,
		Category: op.str("category"),
		Kind:     op.str("kind"),
		Metadata: op.strMap("metadata"),
		Validity: store.Validity{AssertedAt: now(), Assertive: true},
	}
	if err := tx.SaveEntity(ctx, e); err != nil {
		return nil, amerrors.Storage("save entity", err)
	}
	created[e.ID] = true
	return map[string]any{"entity_id": e.ID}, nil
}

func (f *Facade) txAddObservation(ctx context.Context, tx store.BatchWriter, op Args, created map[string]bool) (map[string]any, error) {
	entityID := op.str("entity_id")
	text := op.str("text")
	if entityID == "" || text == "" {
		return nil, amerrors.Validation("add_observation requires entity_id and text")
	}
	if err := requireEntity(ctx, tx, created, entityID); err != nil {
		return nil, err
	}

	vec, err := f.Embedder.Embed(ctx, text)
	if err != nil {
		vec = make([]float32, f.Embedder.Dimensions())
	}

	sessionID, taskID := op.str("session_id"), op.str("task_id")
	if sessionID == "" && taskID == "" {
		sessionID, taskID = f.activeContext()
	}

	o := &store.Observation{
		ID:        f.NewID(),
		EntityID:  entityID,
		Text:      text,
		Embedding: vec,
		SessionID: sessionID,
		TaskID:    taskID,
		Validity:  store.Validity{AssertedAt: now(), Assertive: true},
	}
	if err := tx.SaveObservation(ctx, o); err != nil {
		return nil, amerrors.Storage("save observation", err)
	}
	return map[string]any{"observation_id": o.ID}, nil
}

func (f *Facade) txCreateRelation(ctx context.Context, tx store.BatchWriter, op Args, created map[string]bool) (map[string]any, error) {
	fromID, toID := op.str("from_id"), op.str("to_id")
	if fromID == "" || toID == "" {
		return nil, amerrors.Validation("create_relation requires from_id and to_id")
	}
	if fromID == toID {
		return nil, amerrors.Validation("relationship cannot be a self-loop")
	}
	if err := requireEntity(ctx, tx, created, fromID); err != nil {
		return nil, err
	}
	if err := requireEntity(ctx, tx, created, toID); err != nil {
		return nil, err
	}

	strength := op.floatVal("strength")
	if strength == 0 {
		strength = 1.0
	}
	confidence := op.floatVal("confidence")
	if confidence == 0 {
		confidence = 1.0
	}
	if strength < 0 || strength > 1 || confidence < 0 || confidence > 1 {
		return nil, amerrors.Validation("strength and confidence must be in [0,1]")
	}

	r := &store.Relationship{
		ID:           f.NewID(),
		FromID:       fromID,
		ToID:         toID,
		RelationType: op.str("relation_type"),
		Strength:     strength,
		Confidence:   confidence,
		Metadata:     op.strMap("metadata"),
		Validity:     store.Validity{AssertedAt: now(), Assertive: true},
	}
	if err := tx.SaveRelationship(ctx, r); err != nil {
		return nil, amerrors.Storage("save relationship", err)
	}
	return map[string]any{"relationship_id": r.ID}, nil
}

// requireEntity validates that id refers to an entity asserted now, either
// created earlier in the same batch or already present in the store.
func requireEntity(ctx context.Context, tx store.BatchWriter, created map[string]bool, id string) error {
	if created[id] {
		return nil
	}
	e, err := tx.GetEntity(ctx, id, now())
	if err != nil {
		return amerrors.Storage("load entity", err)
	}
	if e == nil {
		return amerrors.NotFound("entity " + id + " not found")
	}
	return nil
}
