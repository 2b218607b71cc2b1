package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Router interprets inbound frames and decides between unicast (one named
// same-room peer) and multicast (the sender's room minus the sender). It
// never errors back to the sender: routing misses are dropped and logged,
// unknown types are ignored.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: registry, logger: logger}
}

// Dispatch routes one frame from an already-joined sender. A display name
// carried by any message, not just the join, renames the sender first.
func (rt *Router) Dispatch(sender *Client, msg *Inbound) {
	if msg.PeerName != "" {
		rt.registry.SetDisplayName(sender.ID, msg.PeerName)
	}

	switch msg.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		rt.relay(sender, msg, true)

	case TypeChat:
		rt.relayChat(sender, msg)

	case TypeMuteState:
		out := MuteState{Type: TypeMuteState, SenderID: sender.ID, IsMuted: msg.IsMuted}
		frame, err := json.Marshal(out)
		if err != nil {
			rt.logger.Error("encode mute-state", "error", err)
			return
		}
		rt.registry.Broadcast(sender.RoomID, sender.ID, frame)

	case TypeScreenShareStopped:
		rt.relay(sender, msg, false)

	case TypeGetPeers:
		rt.sendPeerList(sender)

	default:
		rt.logger.Info("unknown message type", "type", msg.Type, "client_id", sender.ID)
	}
}

// relay forwards a frame verbatim with the sender's id injected. With a
// target it is unicast to that same-room peer; without one it is multicast
// to the room, unless the type is unicast-only.
func (rt *Router) relay(sender *Client, msg *Inbound, allowBroadcast bool) {
	frame, err := msg.ForwardFrom(sender.ID)
	if err != nil {
		rt.logger.Error("encode relay frame", "type", msg.Type, "error", err)
		return
	}

	if msg.HasTarget {
		if msg.TargetID == nil {
			rt.logger.Info("dropping frame with unparseable targetId",
				"type", msg.Type, "client_id", sender.ID)
			return
		}
		if rt.registry.SendToRoomPeer(sender.RoomID, *msg.TargetID, frame) {
			rt.logger.Debug("forwarded to peer",
				"type", msg.Type, "client_id", sender.ID,
				"target_id", *msg.TargetID, "room", sender.RoomID)
		} else {
			rt.logger.Info("target not reachable in sender's room",
				"type", msg.Type, "client_id", sender.ID,
				"target_id", *msg.TargetID, "room", sender.RoomID)
		}
		return
	}

	if !allowBroadcast {
		rt.logger.Info("dropping unicast-only frame without targetId",
			"type", msg.Type, "client_id", sender.ID)
		return
	}
	rt.registry.Broadcast(sender.RoomID, sender.ID, frame)
	rt.logger.Debug("broadcast to room", "type", msg.Type, "client_id", sender.ID, "room", sender.RoomID)
}

// relayChat re-encodes a chat message to the fixed relayed shape; payload
// fields outside it are discarded.
func (rt *Router) relayChat(sender *Client, msg *Inbound) {
	name := msg.SenderName
	if name == "" {
		name = fmt.Sprintf("Client %d", sender.ID)
	}
	out := Chat{
		Type:       TypeChat,
		Text:       msg.Text,
		SenderID:   sender.ID,
		SenderName: name,
		Timestamp:  msg.Timestamp,
	}
	frame, err := json.Marshal(out)
	if err != nil {
		rt.logger.Error("encode chat", "error", err)
		return
	}
	rt.registry.Broadcast(sender.RoomID, sender.ID, frame)
	rt.logger.Debug("chat broadcast", "client_id", sender.ID, "sender_name", name, "room", sender.RoomID)
}

// sendPeerList answers get-peers with the other ids in the sender's room.
// No other peer is touched.
func (rt *Router) sendPeerList(sender *Client) {
	peers := make([]int64, 0)
	for _, id := range rt.registry.PeersInRoom(sender.RoomID) {
		if id != sender.ID {
			peers = append(peers, id)
		}
	}
	frame, err := json.Marshal(PeerList{Type: TypePeerList, Peers: peers})
	if err != nil {
		rt.logger.Error("encode peer-list", "error", err)
		return
	}
	rt.registry.SendTo(sender.ID, frame)
}
