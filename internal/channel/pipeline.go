package channel

import (
	"context"
	"fmt"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/log"
	"github.com/corvushealth/engine/internal/message"
	"github.com/corvushealth/engine/internal/script"
	"github.com/corvushealth/engine/internal/stats"
)

// channelDispatcher adapts a Channel into connector.Dispatcher, the
// narrow seam a Source Connector calls to hand off one arrival (spec
// §4.1 "Dispatch pipeline").
type channelDispatcher struct {
	channel *Channel
}

func (d channelDispatcher) Dispatch(ctx context.Context, rawData string, sourceMap map[string]interface{}) (*message.Message, error) {
	return d.channel.dispatch(ctx, rawData, sourceMap)
}

// dispatch runs steps 1-5 of spec §4.1 and then either completes steps
// 6-15 synchronously or stashes the envelope for the async worker,
// depending on AsyncIntake.
func (c *Channel) dispatch(ctx context.Context, rawData string, sourceMap map[string]interface{}) (*message.Message, error) {
	messageID := c.allocator.Next()

	msg := message.NewMessage(c.cfg.ChannelID, "", messageID)
	source := message.NewConnectorMessage(c.cfg.ChannelID, messageID, message.SourceMetaDataID)
	for k, v := range sourceMap {
		source.SourceMap[k] = v
	}
	source.SetContent(message.ContentRaw, rawData, c.cfg.Source.InboundDataType(), false)
	msg.PutConnectorMessage(source)

	// Attachment extraction (spec §4.1 step 3) is delegated to an
	// Attachment Handler outside this package's scope; RAW is used
	// as-is when none is configured.

	ops := []StatOp{{MetaDataID: message.SourceMetaDataID, Increment: stats.Received}}
	if err := c.store.PersistSourceIntake(ctx, msg, source, c.cfg.Settings, ops); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist source intake failed")
	}
	c.accum.UpdateStatus(message.SourceMetaDataID, stats.Received, nil)

	if c.cfg.AsyncIntake {
		select {
		case c.asyncRing <- asyncEnvelope{msg: msg, source: source}:
		default:
			// ring full: process inline rather than drop the arrival.
			c.continuePipeline(ctx, msg, source)
		}
		return msg, nil
	}

	c.continuePipeline(ctx, msg, source)
	return msg, nil
}

// continuePipeline runs steps 6-15 of spec §4.1, shared by the
// synchronous path and the async worker.
func (c *Channel) continuePipeline(ctx context.Context, msg *message.Message, source *message.ConnectorMessage) {
	if c.cfg.Scripts.Preprocessor != "" {
		result, err := c.executor.Execute(ctx, c.cfg.Scripts.Preprocessor, c.bindings(source, source.Content[message.ContentRaw].Data))
		if err != nil {
			c.failSource(ctx, source, err)
			return
		}
		source.SetContent(message.ContentProcessedRaw, result.Content, source.Content[message.ContentRaw].DataType, false)
	}

	destSet := message.NewDestinationSet(allMetaDataIDs(c.destinations), allNames(c.destinations))
	source.SourceMap[message.DestinationSetKey] = destSet

	inputContent := source.Content[message.ContentRaw].Data
	if pr, ok := source.Content[message.ContentProcessedRaw]; ok {
		inputContent = pr.Data
	}

	if c.cfg.Scripts.Filter != "" {
		result, err := c.executor.Execute(ctx, c.cfg.Scripts.Filter, c.bindings(source, inputContent))
		if err != nil {
			c.failSource(ctx, source, err)
			return
		}
		if result.Filtered {
			source.Status = message.StatusFiltered
			ops := []StatOp{{MetaDataID: message.SourceMetaDataID, Increment: stats.Filtered}}
			if err := c.store.PersistSourceFiltered(ctx, source, ops); err != nil {
				log.Get().WithError(err).Error("channel dispatch: persist source filtered failed")
			}
			c.accum.UpdateStatus(message.SourceMetaDataID, stats.Filtered, nil)
			msg.Processed = true
			return
		}
	}

	transformed := inputContent
	if c.cfg.Scripts.Transformer != "" {
		result, err := c.executor.Execute(ctx, c.cfg.Scripts.Transformer, c.bindings(source, inputContent))
		if err != nil {
			c.failSource(ctx, source, err)
			return
		}
		transformed = result.Content
	}
	source.Status = message.StatusTransformed
	source.SetContent(message.ContentTransformed, transformed, source.Content[message.ContentRaw].DataType, false)
	source.SetContent(message.ContentEncoded, transformed, source.Content[message.ContentRaw].DataType, false)
	if err := c.store.PersistSourceProcessing(ctx, source, c.cfg.Settings, nil); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist source processing failed")
	}

	destInput := source.EncodedOrTransformedOrRaw()

	destSetNow, _ := source.SourceMap[message.DestinationSetKey].(*message.DestinationSet)
	for _, d := range c.destinations {
		if destSetNow != nil && !destSetNow.Contains(d.metaDataID) {
			continue
		}
		c.runDestination(ctx, msg, source, d, destInput)
	}

	if destSetNow != nil {
		declared := allMetaDataIDs(c.destinations)
		excludedIDs := make(map[int]struct{})
		for _, id := range destSetNow.Excluded(declared) {
			excludedIDs[id] = struct{}{}
		}
		for _, d := range c.destinations {
			if _, excluded := excludedIDs[d.metaDataID]; excluded {
				dcm := source.CloneForDestination(d.metaDataID)
				dcm.Status = message.StatusFiltered
				msg.PutConnectorMessage(dcm)
				ops := []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Filtered}}
				if err := c.store.PersistDestinationExcluded(ctx, dcm, ops); err != nil {
					log.Get().WithError(err).Error("channel dispatch: persist excluded destination failed")
				}
				c.accum.UpdateStatus(d.metaDataID, stats.Filtered, nil)
			}
		}
	}

	prune, err := c.store.AllTerminal(ctx, msg.MessageID, c.cfg.ChannelID)
	if err != nil {
		prune = false
	}
	if c.cfg.Scripts.Postprocessor != "" {
		if _, err := c.executor.Execute(ctx, c.cfg.Scripts.Postprocessor, c.bindings(source, inputContent)); err != nil {
			if perr := c.store.PersistPostProcessorError(ctx, msg, err.Error()); perr != nil {
				log.Get().WithError(perr).Error("channel dispatch: persist postprocessor error failed")
			}
		}
	}

	if err := c.store.PersistFinish(ctx, msg, source, c.cfg.Settings, prune); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist finish failed")
	}
	msg.Processed = true

	if err := c.store.PersistSourceMap(ctx, source); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist source map failed")
	}

	c.publisher.PublishMessageComplete(MessageCompleteEvent{
		ChannelID:   c.cfg.ChannelID,
		ChannelName: c.cfg.ChannelName,
		MessageID:   msg.MessageID,
	})
}

// runDestination executes one destination's filter/transform/send/
// response cycle (spec §4.1 step 11).
func (c *Channel) runDestination(ctx context.Context, msg *message.Message, source *message.ConnectorMessage, d *destination, input message.Content) {
	dcm := source.CloneForDestination(d.metaDataID)
	dcm.SetContent(message.ContentRaw, input.Data, input.DataType, input.Encrypted)
	msg.PutConnectorMessage(dcm)
	if err := c.store.PersistDestinationIntake(ctx, dcm); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist destination intake failed")
	}

	if d.filterScript != "" {
		result, err := c.executor.Execute(ctx, d.filterScript, c.destBindings(dcm, input.Data))
		if err != nil {
			c.failDestination(ctx, d, dcm, err)
			return
		}
		if result.Filtered {
			dcm.Status = message.StatusFiltered
			ops := []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Filtered}}
			if perr := c.store.PersistDestinationFiltered(ctx, dcm, ops); perr != nil {
				log.Get().WithError(perr).Error("channel dispatch: persist destination filtered failed")
			}
			c.accum.UpdateStatus(d.metaDataID, stats.Filtered, nil)
			source.MergeChannelMap(dcm)
			return
		}
	}

	transformed := input.Data
	if d.transformerScript != "" {
		result, err := c.executor.Execute(ctx, d.transformerScript, c.destBindings(dcm, input.Data))
		if err != nil {
			c.failDestination(ctx, d, dcm, err)
			return
		}
		transformed = result.Content
	}
	dcm.Status = message.StatusTransformed
	dcm.SetContent(message.ContentEncoded, transformed, input.DataType, false)
	if err := c.store.PersistDestinationTransformed(ctx, dcm, d.settings); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist destination transformed failed")
	}

	dcm.SendAttempts++
	sendErr := d.conn.Send(ctx, dcm)
	if sendErr != nil {
		c.onSendFailure(ctx, d, dcm, sendErr)
		source.MergeChannelMap(dcm)
		return
	}
	dcm.Status = message.StatusSent

	if d.storeResponse {
		if resp, ok, err := d.conn.GetResponse(ctx, dcm); err == nil && ok {
			dcm.SetContent(message.ContentResponse, resp.Data, resp.DataType, resp.Encrypted)
			dcm.Status = message.StatusPending
			if perr := c.store.PersistDestinationPending(ctx, dcm, d.settings); perr != nil {
				log.Get().WithError(perr).Error("channel dispatch: persist destination pending failed")
			}
			if d.responseTransformerScript != "" {
				if result, rerr := c.executor.Execute(ctx, d.responseTransformerScript, c.destBindings(dcm, resp.Data)); rerr == nil {
					dcm.SetContent(message.ContentResponseTransformed, result.Content, resp.DataType, false)
				} else {
					dcm.ResponseError = rerr.Error()
				}
			}
			dcm.Status = message.StatusSent
		}
	}

	ops := []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Sent}}
	if err := c.store.PersistDestinationFinal(ctx, dcm, d.settings, ops); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist destination final failed")
	}
	c.accum.UpdateStatus(d.metaDataID, stats.Sent, nil)
	source.MergeChannelMap(dcm)
}

func (c *Channel) onSendFailure(ctx context.Context, d *destination, dcm *message.ConnectorMessage, sendErr error) {
	if d.queueEnabled() {
		dcm.Status = message.StatusQueued
		ops := []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Queued}}
		if err := c.store.PersistDestinationQueued(ctx, dcm, ops); err != nil {
			log.Get().WithError(err).Error("channel dispatch: persist destination queued failed")
		}
		c.accum.UpdateStatus(d.metaDataID, stats.Queued, nil)
		d.queue.Push(dcm)
		if qs, ok := c.store.(connector.QueueStore); ok {
			if err := qs.EnqueueEntry(c.cfg.ChannelID, d.metaDataID, dcm); err != nil {
				log.Get().WithError(err).Error("channel dispatch: durable enqueue failed")
			}
		}
		return
	}
	dcm.Status = message.StatusError
	dcm.ProcessingError = sendErr.Error()
	ops := []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Error}}
	if err := c.store.PersistDestinationError(ctx, dcm, ops); err != nil {
		log.Get().WithError(err).Error("channel dispatch: persist destination error failed")
	}
	c.accum.UpdateStatus(d.metaDataID, stats.Error, nil)
}

// onQueueTerminal persists a queue worker's final disposition for an
// entry that has been retried to success or to exhausted-retry failure
// (spec §4.2 "On success... On exception").
func (c *Channel) onQueueTerminal(ctx context.Context, d *destination, cm *message.ConnectorMessage) {
	var ops []StatOp
	var err error
	switch cm.Status {
	case message.StatusSent:
		ops = []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Sent, Decrement: statPtr(stats.Queued)}}
		err = c.store.PersistDestinationFinal(ctx, cm, d.settings, ops)
	default:
		ops = []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Error, Decrement: statPtr(stats.Queued)}}
		err = c.store.PersistDestinationError(ctx, cm, ops)
	}
	if err != nil {
		log.Get().WithError(err).Error("channel: persist queue terminal disposition failed")
		return
	}
	for _, op := range ops {
		c.accum.UpdateStatus(op.MetaDataID, op.Increment, op.Decrement)
	}
	if qs, ok := c.store.(connector.QueueStore); ok {
		if err := qs.RemoveEntry(c.cfg.ChannelID, d.metaDataID, cm.MessageID); err != nil {
			log.Get().WithError(err).Error("channel: durable queue entry removal failed")
		}
	}
}

func (c *Channel) failSource(ctx context.Context, source *message.ConnectorMessage, err error) {
	source.Status = message.StatusError
	source.ProcessingError = err.Error()
	ops := []StatOp{{MetaDataID: message.SourceMetaDataID, Increment: stats.Error}}
	if perr := c.store.PersistSourceError(ctx, source, ops); perr != nil {
		log.Get().WithError(perr).Error("channel dispatch: persist source error failed")
	}
	c.accum.UpdateStatus(message.SourceMetaDataID, stats.Error, nil)
}

func (c *Channel) failDestination(ctx context.Context, d *destination, dcm *message.ConnectorMessage, err error) {
	dcm.Status = message.StatusError
	dcm.ProcessingError = err.Error()
	ops := []StatOp{{MetaDataID: d.metaDataID, Increment: stats.Error}}
	if perr := c.store.PersistDestinationError(ctx, dcm, ops); perr != nil {
		log.Get().WithError(perr).Error("channel dispatch: persist destination error failed")
	}
	c.accum.UpdateStatus(d.metaDataID, stats.Error, nil)
}

func (c *Channel) bindings(cm *message.ConnectorMessage, content string) script.Bindings {
	return script.Bindings{SourceMap: cm.SourceMap, ChannelMap: cm.ChannelMap, ConnectorMap: cm.ConnectorMap, ResponseMap: cm.ResponseMap, Content: content}
}

func (c *Channel) destBindings(cm *message.ConnectorMessage, content string) script.Bindings {
	return c.bindings(cm, content)
}

func statPtr(s stats.Status) *stats.Status { return &s }

func allMetaDataIDs(dests []*destination) []int {
	ids := make([]int, 0, len(dests))
	for _, d := range dests {
		ids = append(ids, d.metaDataID)
	}
	return ids
}

func allNames(dests []*destination) []string {
	names := make([]string, 0, len(dests))
	for _, d := range dests {
		names = append(names, d.name)
	}
	return names
}

// startAsyncWorker drains the async ring, running steps 6-15 for each
// envelope (spec §4.1 "Dispatch pipeline (asynchronous mode)").
func (c *Channel) startAsyncWorker(ctx context.Context) {
	ringSize := c.cfg.RingSize
	if ringSize <= 0 {
		ringSize = 1024
	}
	c.asyncRing = make(chan asyncEnvelope, ringSize)
	runCtx, cancel := context.WithCancel(ctx)
	c.asyncCancel = cancel
	c.asyncRunning.Set()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case env := <-c.asyncRing:
				c.continuePipeline(runCtx, env.msg, env.source)
			}
		}
	}()
}

// runRecovery re-enters the pipeline for unfinished work left over from a
// crash (spec §4.4 "Recovery task"). The concrete store query for
// candidate rows lives in internal/store/recovery.go; this entry point
// only wires the three dispositions together.
func (c *Channel) runRecovery(ctx context.Context) error {
	recoverer, ok := c.store.(Recoverer)
	if !ok {
		return nil
	}
	pending, err := recoverer.PendingDestinations(ctx, c.cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("recovery: load pending destinations: %w", err)
	}
	for _, cm := range pending {
		d := c.destinationByMetaDataID(cm.MetaDataID)
		if d == nil {
			continue
		}
		if resp, ok := cm.GetContent(message.ContentResponse); ok && d.responseTransformerScript != "" {
			if result, rerr := c.executor.Execute(ctx, d.responseTransformerScript, c.destBindings(cm, resp.Data)); rerr == nil {
				cm.SetContent(message.ContentResponseTransformed, result.Content, resp.DataType, false)
			}
		}
		cm.Status = message.StatusSent
		if err := c.store.PersistDestinationFinal(ctx, cm, d.settings, nil); err != nil {
			log.Get().WithError(err).Error("recovery: finalize pending destination failed")
		}
	}

	unfinished, err := recoverer.UnfinishedDestinations(ctx, c.cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("recovery: load unfinished destinations: %w", err)
	}
	for _, cm := range unfinished {
		d := c.destinationByMetaDataID(cm.MetaDataID)
		if d == nil || !d.queueEnabled() {
			continue
		}
		d.queue.Push(cm)
	}

	return nil
}

func (c *Channel) destinationByMetaDataID(id int) *destination {
	for _, d := range c.destinations {
		if d.metaDataID == id {
			return d
		}
	}
	return nil
}

// Recoverer is implemented by a Store that can enumerate crash-recovery
// candidates (spec §4.4 "Recovery task").
type Recoverer interface {
	PendingDestinations(ctx context.Context, channelID string) ([]*message.ConnectorMessage, error)
	UnfinishedDestinations(ctx context.Context, channelID string) ([]*message.ConnectorMessage, error)
}
