/*
   Copyright (c) 2020, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package ircu

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// submitChannel runs fn on the server's Hub so it observes and mutates
// channel state serialized with every other JOIN/PART/KICK/MODE/TOPIC/
// INVITE in flight (spec.md §5). The write side of a connection
// (conn.Write/conn.writeQueue) stays safe to call from inside fn since
// it's independently synchronized per connection.
func submitChannel(conn *Conn, fn func()) {
	if err := conn.server.Hub.Submit(context.Background(), fn); err != nil {
		log.Errorf("irc: Hub.Submit failed for [%s]: %s", conn.remAddr, err)
	}
}

// Handlers is a map of functions where the handlers are stored.
var Handlers = make(map[string]MessageHandler)

// MessageHandler defines the function signature of a handler used to
// process IRC messages.
type MessageHandler func(*Conn, *Message)

// All of command handler functions do not return an error. Instead it
// must process all error conditions relating to the command and reply
// to the user in the correct way specified by RFC2812.

// HandleQuit processes a QUIT command.
//
// The connection will be scheduled for immediate deadline, and the
// server will broadcast the QUIT message to all channels the user is
// joined to.
//
//    Command: QUIT
//    Parameters: :<reason>
func HandleQuit(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)
	conn.doQuit(msg.Text)
}

// HandleNick processes a NICK command.
//
// First, it checks if the current nickname is in use by the user issuing
// the command; by another user on the server; or disallowed by the server
// configuration. Then it checks the validity of the nickname formatting
// before finally, if all of the requirements are met, sets the User object
// Nick field to the specified name in the command parameters.
//
//    Command: NICK
//    Parameters: <nickname>
func HandleNick(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)
	ok := true

	if !enoughParams(msg, 1) {
		conn.ReplyNoNicknameGiven()
		return
	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)

	reply.Code = ReplyNicknameInUse

	if conn.user.Nick() == msg.Params[0] {
		reply.Text = ErrNickAlreadySet.String()
		ok = false
	}

	if ok && conn.server.Nicks.Exists(msg.Params[0]) {
		reply.Text = ErrNickInUse.String()
		ok = false
	}

	// TODO: Nick restriction check

	// TODO: Nick formatting checks
	// This ties into configurations such as:
	// - nick length
	// - reserved nicks

	if ok { // Nick formatting check stub
		conn.user.SetNick(msg.Params[0])
		reply.Code = ReplyNone
		reply.Command = CmdNick
		reply.Text = ""
		// TODO: Send nick change to all channels user is joined to.
	}

	reply.Params = []string{conn.user.Nick()}

	conn.Write(reply.RenderBuffer())
}

// HandleUser processes a USER command.
//
// First, it checks if the specieifed username is in use by the user issuing
// the command; by another user on the server; or disallowed by the server
// configuration. Then it checks the validity of the username formatting
// before finally, if all of the requirements are met, sets the User object
// Name field to the specified name in the command parameters.
//
//    Command: USER
//    Parameters: <username> <modemask> -0(unused)- :[realname]
func HandleUser(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 3) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	if len(conn.user.Nick()) < 1 {
		conn.ReplyNoNicknameGiven()
		return
	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)

	reply.Params = []string{conn.user.Nick()}
	reply.Code = ReplyAlreadyRegistered

	if len(conn.user.Name()) > 0 {
		reply.Text = ErrUserAreadySet.String()
		conn.Write(reply.RenderBuffer())
		return
	}

	if conn.server.Users.Exists(msg.Params[0]) {
		reply.Text = ErrUserInUse.String()
		conn.Write(reply.RenderBuffer())
		return
	}

	// TODO: Username restriction check

	// TODO: Username formatting checks
	// This ties into configurations such as:
	// - username length
	// - realname length
	// - reserved names

	conn.user.SetName(msg.Params[0])
	conn.user.SetRealname(msg.Text)
	conn.user.SetHostname(conn.remAddr)
	conn.regiserUser()

	if !conn.capRequested || conn.capNegotiated {
		conn.ReplyWelcome()
		conn.ReplyISupport()
	}
}

// HandleCap processes the CAP command and sub commands for
// negotiating capabilties per the IRCv3.2 spec.
//
//    Command: CAP
//    Parameters: <subcommand> [param] :[capabiliy] [capability]
func HandleCap(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 2) {
		conn.ReplyInvalidCapCommand(msg.Command)
		return
	}

	switch msg.Params[1] {
	case "LS":
		fallthrough
	case "LIST":
		// conn.ListCapabilities() // TODO: List capabilities
	case "REQ":
		if !enoughParams(msg, 3) {
			conn.ReplyNeedMoreParams(msg.Command)
		}
		// conn.HandleCapRequest(msg.Params[2]) // TODO: Capability request handler
	case "END":
		conn.capNegotiated = true
		if conn.registered {
			conn.ReplyWelcome()
			conn.ReplyISupport()
		}
	default:
		conn.ReplyInvalidCapCommand(msg.Command)
		return
	}
}

// HandlePrivmsg processes a PRIVMSG command.
//
// First, it checks if the specified nickname or channel exists; then
// checks if the sender is disallowed from sending the message by the
// sender's usermode. If all of the requirements are met, it sends
// the message to the intended recpient.
//
//    Command: PRIVMSG
//    Parameters: <target> :<text>
func HandlePrivmsg(conn *Conn, msg *Message) {
	doChatMessage(conn, msg)
}

// HandleNotice processes a NOTICE command.
//
// First, it checks if the specified nickname or channel exists; then
// checks if the sender is disallowed from sending the message by the
// sender's usermode. If all of the requirements are met, it sends
// the message to the intended recpient.
//
//    Command: NOTICE
//    Parameters: <target> :<text>
func HandleNotice(conn *Conn, msg *Message) {
	doChatMessage(conn, msg)
}

func doChatMessage(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 1) || len(msg.Text) < 1 {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	// TODO: Send Message permission check

	targetuser, uerr := conn.server.Nicks.Get(strings.ToLower(msg.Params[0]))
	targetchan := conn.server.Channels.Get(msg.Params[0])

	if uerr != nil && targetchan == nil {
		log.Debug("irc: Chat Message: did not find target")
		conn.ReplyNoSuchNick(msg.Params[0])
		return
	}

	msg.Params = msg.Params[0:1] // Strip erroneous parameters.
	msg.Sender = conn.user.Hostmask()

	if targetuser != nil {
		targetuser.conn.Write(msg.RenderBuffer())
	} else {
		targetchan.Broadcast(msg.RenderBuffer(), conn.user.Nick())
	}
}

// HandleJoin processes a JOIN command.
//
// The server will first check if the channel exists, if not,
// create a new channel. Then, the user will be added to the
// channel members if the the user has sufficient permissions;
// which are implied if the channel must first be created.
//
//    Command: JOIN
//    Prameters: <channel>
func HandleJoin(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	var keyRing string
	if len(msg.Params) > 1 {
		keyRing = msg.Params[1]
	}

	sender := conn.user.Hostmask()
	nick := conn.user.Nick()

	// Created and joined are batched separately (JoinBuf, spec.md §4.11)
	// since a founding join and an ordinary join propagate to peer links
	// differently: a created-batch carries the founding +o implicitly,
	// an existing-channel batch does not.
	created := NewJoinBuf(nick, true)
	joined := NewJoinBuf(nick, false)

	for _, raw := range strings.Split(msg.Params[0], ",") {
		name := CleanChannelName(raw)
		if name == "" {
			continue
		}

		var denied CanJoinResult
		var channel *Channel

		submitChannel(conn, func() {
			existing := conn.server.Channels.Get(name)
			if existing != nil {
				invited := conn.server.Channels.IsInvited(existing, nick)
				if verdict := CanJoin(existing, conn.user.Hostmask(), invited, keyRing); verdict != CanJoinOK {
					denied = verdict
					return
				}
			}

			result := AddUserToChannel(conn.server.Channels, name, nick, conn, AtTS(time.Now().Unix()), false)
			channel = conn.server.Channels.Get(name)

			conn.Lock()
			conn.channels[channel.FoldedName()] = channel
			conn.Unlock()

			join := conn.newMessage()
			join.Sender = sender
			join.Command = CmdJoin
			join.Params = []string{channel.Name()}
			channel.Broadcast(join.RenderBuffer(), "")
			msgpool.Recycle(join)

			if result.Created {
				created.Add(channel.Name())
			} else {
				joined.Add(channel.Name())
			}
		})

		if denied != CanJoinOK {
			conn.ReplyJoinDenied(name, denied)
			continue
		}

		conn.ReplyChannelNames(channel)
	}

	propagateJoins(conn, created, joined)
}

// propagateJoins forwards this server's just-completed JOINs to every
// peer link, each destination batch flushed through its own JoinBuf so
// a client joining many channels at once doesn't cost one SERVER line
// per channel (spec.md §4.11).
func propagateJoins(conn *Conn, created, joined *JoinBuf) {
	nick := conn.user.Nick()

	flush := func(jb *JoinBuf, command string) {
		for _, line := range jb.Lines() {
			conn.server.Peers.ForEach(func(peer *Conn) {
				out := conn.newMessage()
				out.Sender = nick
				out.Command = command
				out.Params = []string{line}
				peer.Write(out.RenderBuffer())
				msgpool.Recycle(out)
			})
		}
	}

	flush(created, CmdCreate)
	flush(joined, CmdJoin)
}

// HandlePart processes a PART command.
//
// The user is removed from each named channel's member set and a PART
// line is broadcast to the remaining members first, so the leaving
// user's own connection (still subscribed at broadcast time) also sees
// it.
//
//    Command: PART
//    Parameters: <channel>{,<channel>} [:<reason>]
func HandlePart(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	names := strings.Split(msg.Params[0], ",")
	sender := conn.user.Hostmask()
	nick := conn.user.Nick()

	for _, raw := range names {
		name := CleanChannelName(raw)
		folded := FoldChannelName(name)

		conn.RLock()
		channel, onChan := conn.channels[folded]
		conn.RUnlock()

		if !onChan {
			conn.ReplyNotOnChannel(name)
			continue
		}

		submitChannel(conn, func() {
			part := conn.newMessage()
			part.Sender = sender
			part.Command = CmdPart
			part.Params = []string{channel.Name()}
			part.Text = msg.Text
			channel.Broadcast(part.RenderBuffer(), "")
			msgpool.Recycle(part)

			conn.server.Channels.RemoveInvite(channel, nick)
			RemoveUserFromChannel(conn.server.Channels, channel, nick)
		})

		conn.Lock()
		delete(conn.channels, folded)
		conn.Unlock()
	}
}

// HandleKick processes a KICK command.
//
// The source must hold channel operator status on the target channel.
// Every named nick still on the channel is removed and a KICK line is
// broadcast before the removal, matching HandlePart's ordering.
//
//    Command: KICK
//    Parameters: <channel> <nick>{,<nick>} [:<reason>]
func HandleKick(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 2) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	name := CleanChannelName(msg.Params[0])
	folded := FoldChannelName(name)

	conn.RLock()
	channel, onChan := conn.channels[folded]
	conn.RUnlock()

	if !onChan {
		conn.ReplyNotOnChannel(name)
		return
	}

	sourceMember := channel.Members().Get(conn.user.Nick())
	if sourceMember == nil || !sourceMember.IsChanOp() {
		conn.ReplyChanOpPrivsNeeded(name)
		return
	}

	sender := conn.user.Hostmask()
	reason := msg.Text
	if reason == "" {
		reason = conn.user.Nick()
	}

	for _, targetNick := range strings.Split(msg.Params[1], ",") {
		var missing bool

		submitChannel(conn, func() {
			target := channel.Members().Get(targetNick)
			if target == nil {
				missing = true
				return
			}

			kick := conn.newMessage()
			kick.Sender = sender
			kick.Command = CmdKick
			kick.Params = []string{channel.Name(), target.User}
			kick.Text = reason
			channel.Broadcast(kick.RenderBuffer(), "")
			msgpool.Recycle(kick)

			conn.server.Channels.RemoveInvite(channel, target.User)

			if sink, ok := target.Sink.(*Conn); ok {
				sink.Lock()
				delete(sink.channels, channel.FoldedName())
				sink.Unlock()
			}

			// localUser is whether the kicked member's own connection is
			// local to this server (Membership.PeerID == ""); src records
			// whether the KICK itself arrived from a peer link, the two
			// independent facts spec.md §4.11's zombification rule
			// compares against each other.
			localUser := target.PeerID == ""
			var src KickSource
			if conn.isPeer {
				src = KickSource{FromServer: true, PeerID: conn.peerName}
			}
			ApplyKick(conn.server.Channels, channel, target.User, localUser, target.PeerID, src)
		})

		if missing {
			conn.ReplyUserNotInChannel(targetNick, name)
		}
	}
}

// HandleTopic processes a TOPIC command.
//
// With only a channel argument, the current topic is reported back to
// the caller. With a trailing text argument, the topic is changed,
// requiring channel operator status if the channel carries +t.
//
//    Command: TOPIC
//    Parameters: <channel> [:<topic>]
func HandleTopic(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	name := CleanChannelName(msg.Params[0])
	folded := FoldChannelName(name)

	conn.RLock()
	channel, onChan := conn.channels[folded]
	conn.RUnlock()

	if !onChan {
		conn.ReplyNotOnChannel(name)
		return
	}

	if msg.Text == "" {
		if channel.Topic() == "" {
			conn.ReplyNoTopic(channel)
		} else {
			conn.ReplyChannelTopic(channel)
		}
		return
	}

	var denied bool

	submitChannel(conn, func() {
		member := channel.Members().Get(conn.user.Nick())
		if channel.Modes().Has(ModeTopicLimit) && (member == nil || !member.IsChanOp()) {
			denied = true
			return
		}

		channel.SetTopic(msg.Text, conn.user.Nick(), time.Now().Unix())

		topic := conn.newMessage()
		topic.Sender = conn.user.Hostmask()
		topic.Command = CmdTopic
		topic.Params = []string{channel.Name()}
		topic.Text = msg.Text
		channel.Broadcast(topic.RenderBuffer(), "")
		msgpool.Recycle(topic)
	})

	if denied {
		conn.ReplyChanOpPrivsNeeded(name)
	}
}

// HandleInvite processes an INVITE command.
//
// The source must be a member of channel, and a channel operator if
// the channel is +i. The target must exist and not already be a
// member.
//
//    Command: INVITE
//    Parameters: <nick> <channel>
func HandleInvite(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 2) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	targetNick := msg.Params[0]
	name := CleanChannelName(msg.Params[1])
	folded := FoldChannelName(name)

	target, err := conn.server.Nicks.Get(strings.ToLower(targetNick))
	if err != nil {
		conn.ReplyNoSuchNick(targetNick)
		return
	}

	conn.RLock()
	channel, onChan := conn.channels[folded]
	conn.RUnlock()

	if !onChan {
		conn.ReplyNotOnChannel(name)
		return
	}

	var alreadyOn, denied bool

	submitChannel(conn, func() {
		if channel.Members().Get(target.Nick()) != nil {
			alreadyOn = true
			return
		}

		member := channel.Members().Get(conn.user.Nick())
		if channel.Modes().Has(ModeInviteOnly) && (member == nil || !member.IsChanOp()) {
			denied = true
			return
		}

		conn.server.Channels.AddInvite(channel, target.Nick(), conn.user.Nick(), target.IsService())

		invite := conn.newMessage()
		invite.Sender = conn.user.Hostmask()
		invite.Command = CmdInvite
		invite.Params = []string{target.Nick(), channel.Name()}
		target.conn.Write(invite.RenderBuffer())
		msgpool.Recycle(invite)
	})

	switch {
	case alreadyOn:
		conn.ReplyUserOnChannel(target.Nick(), name)
	case denied:
		conn.ReplyChanOpPrivsNeeded(name)
	default:
		conn.ReplyInviting(name, target.Nick())
	}
}

// HandleNames processes a NAMES command.
//
//    Command: NAMES
//    Parameters: [<channel>{,<channel>}]
func HandleNames(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 1) {
		return
	}

	for _, raw := range strings.Split(msg.Params[0], ",") {
		name := CleanChannelName(raw)
		channel := conn.server.Channels.Get(name)
		if channel == nil {
			continue
		}
		conn.ReplyChannelNames(channel)
	}
}

// HandleMode processes MODE commands: channel-mode queries and changes
// (a bare query, a bare-'b' ban-list query, a bare-'I' channel
// invite-list query, or an actual mode string), plus user-mode changes
// when the target is a nick instead of a channel.
//
//    Command: MODE
//    Parameters: <channel>|<nick> [<modestring> [<mode arguments>...]]
func HandleMode(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	if !strings.HasPrefix(msg.Params[0], "#") && !strings.HasPrefix(msg.Params[0], "&") {
		doUserMode(conn, msg)
		return
	}

	name := CleanChannelName(msg.Params[0])

	channel := conn.server.Channels.Get(name)
	if channel == nil {
		conn.ReplyNoSuchChan(name)
		return
	}

	if len(msg.Params) < 2 {
		conn.ReplyChannelModeIs(channel)
		return
	}

	if msg.Params[1] == "b" && len(msg.Params) == 2 {
		conn.ReplyBanList(channel)
		return
	}

	if msg.Params[1] == "I" && len(msg.Params) == 2 {
		var invited []string
		for _, foldedNick := range channel.InvitedNicks() {
			if u, err := conn.server.Nicks.Get(foldedNick); err == nil {
				invited = append(invited, u.Nick())
			} else {
				invited = append(invited, foldedNick)
			}
		}
		conn.ReplyInviteList(channel, invited)
		return
	}

	var isOper bool
	source := ""
	if conn.isPeer {
		source = msg.Sender
		if source == "" {
			source = conn.peerName
		}
	} else {
		source = conn.user.Nick()
		member := channel.Members().Get(source)
		isOper = member != nil && member.IsChanOp()
	}

	var result *ModeParseResult

	submitChannel(conn, func() {
		req := ModeParseRequest{
			Channel:     channel,
			Source:      source,
			IsOper:      isOper,
			FromServer:  conn.isPeer,
			UWorld:      conn.isPeer && conn.peerUWorld,
			OriginPeer:  conn.peerName,
			Now:         time.Now().Unix(),
			IsService:   func(nick string) bool { return nickIsService(conn.server, nick) },
			IsLocalOper: func(nick string) bool { return nickIsLocalOper(conn.server, nick) },
			OnUninvite:  func() { conn.server.Channels.DropAllInvites(channel) },
		}
		var state BanOverlapState
		result = ParseChannelMode(req, msg.Params[1:], channel.Members().Get, &state)
	})

	if !conn.isPeer {
		// Per-element errors go back to the local client; errors from a
		// peer's elements are recovered locally and never replied.
		for _, e := range result.Errors {
			conn.ReplyModeError(name, e)
		}
	}

	if result.Applied == nil || result.Applied.Len() == 0 {
		return
	}

	// Emission order per the channel core's ordering guarantee: the
	// local-member MODE first, then peer propagation, then HACK
	// notices, then the bounce back to the origin — so a peer that
	// bounced us always sees the bounce before any follow-on mode it
	// induced.
	bounced := result.Decision == DecisionBounce

	if !bounced {
		sender := source
		if !conn.isPeer {
			sender = conn.user.Hostmask()
		}
		for _, line := range result.Applied.Lines() {
			out := conn.newMessage()
			out.Sender = sender
			out.Command = CmdMode
			out.Params = append([]string{channel.Name()}, strings.Fields(line)...)
			channel.Broadcast(out.RenderBuffer(), "")
			msgpool.Recycle(out)
		}

		propagateMode(conn, channel, result)
	}

	if result.BadOp >= BadOpHack2 {
		hackNotice(conn, channel, result)
	}

	if bounced && result.Bounce != nil && conn.isPeer {
		origin, err := conn.server.Peers.Get(conn.peerName)
		if err == nil {
			result.Bounce.SetResolver(numericResolver(conn.server))
			for _, line := range result.Bounce.Lines() {
				out := conn.newMessage()
				out.Sender = conn.server.Hostname()
				out.Command = CmdMode
				out.Params = append([]string{channel.Name()}, strings.Fields(line)...)
				origin.Write(out.RenderBuffer())
				msgpool.Recycle(out)
			}
		}
	}
}

// propagateMode forwards an accepted channel mode change to every peer
// link except the one it arrived on, appending the channel's creation
// timestamp so the receiving side can run its own arbitration — unless
// the change is a forced HACK(4) override, which rides with timestamp
// 0 (the unconditional-accept sentinel).
func propagateMode(conn *Conn, channel *Channel, result *ModeParseResult) {
	if isLocalChannelName(channel.Name()) {
		return
	}

	peerCopy := result.Applied.WithDest(DestServer)
	peerCopy.SetResolver(numericResolver(conn.server))

	ts := strconv.FormatInt(channel.Creation().Seconds(), 10)
	if result.BadOp == BadOpHack4 {
		ts = "0"
	}

	for _, line := range peerCopy.Lines() {
		conn.server.Peers.ForEach(func(peer *Conn) {
			if conn.isPeer && peer.peerName == conn.peerName {
				return
			}
			out := conn.newMessage()
			out.Sender = conn.server.Hostname()
			out.Command = CmdMode
			out.Params = append(append([]string{channel.Name()}, strings.Fields(line)...), ts)
			peer.Write(out.RenderBuffer())
			msgpool.Recycle(out)
		})
	}
}

// hackNotice reports a suspected desync to operators as a WALLOPS-style
// HACK(n) notice and, for grade 3 and above, sends a DESYNCH line to
// peer links so the rest of the mesh hears about it too.
func hackNotice(conn *Conn, channel *Channel, result *ModeParseResult) {
	grade := 2
	switch result.BadOp {
	case BadOpHack3:
		grade = 3
	case BadOpHack4:
		grade = 4
	}

	text := fmt.Sprintf("HACK(%d): %s MODE %s %s [%d]",
		grade, result.Applied.Source(), channel.Name(),
		strings.Join(result.Applied.Lines(), " "), channel.Creation().Seconds())

	notice := conn.newMessage()
	notice.Sender = conn.server.Hostname()
	notice.Command = CmdWallops
	notice.Text = text
	conn.server.Conns.ForEach(func(c *Conn) {
		if c.user != nil && c.user.ModeIsSet(UModeNetOp) {
			c.Write(notice.RenderBuffer())
		}
	})
	msgpool.Recycle(notice)

	if grade >= 3 {
		conn.server.Peers.ForEach(func(peer *Conn) {
			out := conn.newMessage()
			out.Sender = conn.server.Hostname()
			out.Command = CmdDesynch
			out.Params = []string{channel.Name()}
			out.Text = text
			peer.Write(out.RenderBuffer())
			msgpool.Recycle(out)
		})
	}
}

// numericResolver returns the nick-to-numeric-nick lookup a ModeBuf
// uses when its destination addresses a peer link (spec.md §6): local
// users resolve through the nick table, peer-joined members already go
// by their numeric token.
func numericResolver(srv *Server) func(string) string {
	return func(nick string) string {
		if user, err := srv.Nicks.Get(FoldNick(nick)); err == nil {
			if num := user.NumericNick().String(); num != "" {
				return num
			}
		}
		return nick
	}
}

func nickIsService(srv *Server, nick string) bool {
	user, err := srv.Nicks.Get(FoldNick(nick))
	return err == nil && user.IsService()
}

func nickIsLocalOper(srv *Server, nick string) bool {
	user, err := srv.Nicks.Get(FoldNick(nick))
	return err == nil && user.ServerOrigin() == "" && user.Permission() >= UPermNetOp
}

// doUserMode handles MODE with a nick target: a query of the caller's
// own user modes, or a +/-<letters> change applied through the
// permission checks SetUserMode/UnsetUserMode enforce. Only the user
// themselves (or a higher-permission setter) may change modes, and only
// their own may be queried.
func doUserMode(conn *Conn, msg *Message) {
	if conn.isPeer {
		return
	}

	targetNick := msg.Params[0]

	target, err := conn.server.Nicks.Get(FoldNick(targetNick))
	if err != nil {
		conn.ReplyNoSuchNick(targetNick)
		return
	}

	if len(msg.Params) < 2 {
		if target != conn.user {
			conn.ReplyModeError(targetNick, ErrInsuffPerms)
			return
		}
		out := conn.newMessage()
		out.Sender = conn.server.Hostname()
		out.Code = ReplyUserModeIs
		out.Params = []string{conn.user.Nick(), RenderUserModes(target.Mode())}
		conn.Write(out.RenderBuffer())
		msgpool.Recycle(out)
		return
	}

	add := true
	applied := make([]byte, 0, len(msg.Params[1]))
	appliedSign := byte(0)
	for i := 0; i < len(msg.Params[1]); i++ {
		c := msg.Params[1][i]
		switch c {
		case '+':
			add = true
			continue
		case '-':
			add = false
			continue
		}

		umode, known := UModeLetters[c]
		if !known {
			conn.ReplyModeError(targetNick, ErrUnknownMode)
			continue
		}

		var err error
		if add {
			err = SetUserMode(umode, conn.user, target)
		} else {
			err = UnsetUserMode(umode, conn.user, target)
		}
		if err != nil {
			if e, ok := err.(Error); ok {
				conn.ReplyModeError(targetNick, e)
			}
			continue
		}

		sign := byte('-')
		if add {
			sign = '+'
		}
		if sign != appliedSign {
			applied = append(applied, sign)
			appliedSign = sign
		}
		applied = append(applied, c)
	}

	if len(applied) == 0 {
		return
	}

	out := conn.newMessage()
	out.Sender = conn.user.Hostmask()
	out.Command = CmdMode
	out.Params = []string{target.Nick(), string(applied)}
	conn.Write(out.RenderBuffer())
	msgpool.Recycle(out)
}

// HandleList processes a LIST command.
//
// Secret (+s) channels are omitted unless the caller is a member.
// Without channel arguments, every visible channel is listed; pagination
// across multiple client reads isn't implemented, so the whole filtered
// snapshot is sent in one burst.
//
//    Command: LIST
//    Parameters: [<channel>{,<channel>}]
func HandleList(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	conn.ReplyListStart()

	visible := func(ch *Channel) bool {
		if !ch.Modes().Has(ModeSecret) {
			return true
		}
		return ch.Members().Get(conn.user.Nick()) != nil
	}

	if len(msg.Params) > 0 && msg.Params[0] != "" {
		for _, raw := range strings.Split(msg.Params[0], ",") {
			ch := conn.server.Channels.Get(CleanChannelName(raw))
			if ch == nil || !visible(ch) {
				continue
			}
			conn.ReplyList(ch)
		}
		conn.ReplyEndOfList()
		return
	}

	cursor := NewListCursor(conn.server.Channels, ListFilter{})
	defer cursor.Close()

	for {
		channels, done := cursor.Next(MaxListItems)
		for _, ch := range channels {
			if visible(ch) {
				conn.ReplyList(ch)
			}
		}
		if done {
			break
		}
	}

	conn.ReplyEndOfList()
}

// HandleUserhost processes a USERHOST command originated from the client.
//
// The server will respond with the matching hostname of the requested nicks.
// Limit 5
//
//    Command: USERHOST
//    Parameters: <nickname1> [nickname2] [nickname3] [nickname4] [nickname5]
func HandleUserhost(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	hosts := []string{}

	var buffer bytes.Buffer

	for _, nick := range msg.Params {
		host, err := conn.server.Nicks.Get(strings.ToLower(nick))
		if err != nil {
			// TODO: Nick not fouind
			conn.ReplyNoSuchNick(nick)
			return
		}

		// TODO: Visibility permissions
		buffer.WriteString(nick)
		buffer.WriteString("=+")
		buffer.WriteString(host.Hostmask())
		hosts = append(hosts, buffer.String())
		buffer.Reset()

	}

	msg.Sender = conn.server.Hostname()
	msg.Command = ""
	msg.Code = ReplyUserHost
	msg.Params = []string{conn.user.Nick()}
	msg.Text = strings.Join(hosts, " ")

	conn.Write(msg.RenderBuffer())
}

// HandleServer processes a SERVER command, completing peer-link
// registration (spec.md §6). If the link's name was previously marked
// trusted via WithUWorldServers, the connection is flagged UWorld so
// its MODE overrides get PromoteForUWorld's forced HACK(4) escalation.
//
//    Command: SERVER
//    Parameters: <servername> <hopcount> <numeric> :<description>
func HandleServer(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !enoughParams(msg, 3) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	name := msg.Params[0]
	numeric, ok := DecodeNumericNick(msg.Params[2])
	if !ok {
		log.Errorf("irc: SERVER from [%s] carried a malformed numeric %q", conn.remAddr, msg.Params[2])
		conn.doQuit("Bad server numeric.")
		return
	}

	if err := conn.server.Peers.Add(name, conn); err != nil {
		log.Errorf("irc: Could not register peer link [%s]: %s", name, err)
		conn.doQuit("Server already linked.")
		return
	}

	conn.Lock()
	conn.registered = true
	conn.isPeer = true
	conn.peerName = name
	conn.peerNumeric = numeric
	conn.peerUWorld = conn.server.IsUWorldServer(name)
	conn.Unlock()

	log.Infof("irc: Peer server [%s] linked from [%s]", name, conn.remAddr)

	sendBurst(conn)
}

// sendBurst sends the newly-linked peer conn one 'B' line per live
// channel, bringing it up to date on this server's full channel state
// (spec.md §4.10) the way the original network bursts its entire
// channel table to a fresh link rather than replaying history.
func sendBurst(conn *Conn) {
	for _, ch := range conn.server.Channels.Snapshot() {
		members := make(map[string]string, ch.Members().Len())
		for nick, m := range ch.Members().All() {
			if m.IsZombie() {
				continue
			}
			if m.PeerID == "" {
				user, err := conn.server.Nicks.Get(m.User)
				if err != nil {
					continue
				}
				members[nick] = user.NumericNick().String()
			} else {
				// Already joined keyed by its numeric-nick token
				// (HandleBurst), so it addresses itself.
				members[nick] = m.User
			}
		}

		for _, line := range EncodeBurst(ch, members) {
			out := conn.newMessage()
			out.Sender = conn.server.Hostname()
			out.Command = CmdBurst
			out.Text = line
			conn.Write(out.RenderBuffer())
			msgpool.Recycle(out)
		}
	}
}

// HandleBurst processes a 'B' frame carrying one channel's full state
// from a just-linked peer (spec.md §4.10). Bans already on the channel
// are marked wipeout before the frame is applied and swept afterward,
// so bans the burst still carries survive and ones it drops do not.
//
// The entire DecodeBurst body rides as Text with an empty Params,
// never as individual Params entries: member tokens carry their own
// ':' (e.g. "AAA:ov"), and Parse splits a wire line on the *first*
// literal ':' anywhere in it, not on a " :" trailing-parameter marker
// — so a burst line sent as ordinary space-separated Params would get
// cut apart at its first member's op/voice marker instead of at the
// intended channel/ban boundary. Putting the whole body in Text keeps
// it intact no matter how many ':' characters it contains.
//
//    Command: B
//    Text: <channel> <ts> [<modes> [<limit>] [<key>]] [<numnick>[:o|:v|:ov]{,...}] [:<ban1> <ban2>...]
func HandleBurst(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !conn.isPeer {
		return
	}

	frame, err := DecodeBurst(msg.Text)
	if err != nil {
		log.Errorf("irc: malformed burst frame from [%s]: %s", conn.peerName, err)
		return
	}

	submitChannel(conn, func() {
		ch, _ := conn.server.Channels.GetOrCreate(frame.Channel, AtTS(frame.Timestamp))
		ch.AdoptTimestamp(AtTS(frame.Timestamp))

		for _, c := range frame.Modes {
			switch c {
			case '+', '-':
			case 'l':
				ch.Modes().setLimit(true, frame.Limit)
			case 'k':
				ch.Modes().setKey(true, frame.Key)
			default:
				ch.Modes().setSimple(byte(c), true)
			}
		}

		for _, member := range frame.Members {
			if ch.Members().Get(member.NumericNick) == nil {
				conn.server.Channels.Ref(ch)
			}
			m := ch.Members().Join(member.NumericNick, ch.FoldedName(), conn)
			m.PeerID = conn.peerName
			m.MarkBurstJoin()
			m.SetChanOp(member.Op)
			m.SetVoice(member.Voice)
		}

		ch.Bans().MarkAllWipeout()
		ApplyBurstBans(ch, conn.peerName, frame.Bans, time.Now().Unix())
		ch.Bans().SweepWipeout()
	})
}

// HandleOpMode processes an OPMODE command: a services/oper override
// that applies unconditionally (never bounced, spec.md §4.8 DestOpMode)
// and is additionally logged to opers via a WALLOPS-style DestLog
// notice of the form "<source> used OPMODE on <channel>: <changes>".
//
//    Command: OPMODE
//    Parameters: <channel> <modestring> [<mode arguments>...]
func HandleOpMode(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !conn.isPeer || !enoughParams(msg, 2) {
		return
	}

	name := CleanChannelName(msg.Params[0])
	channel := conn.server.Channels.Get(name)
	if channel == nil {
		return
	}

	source := msg.Sender
	if source == "" {
		source = conn.peerName
	}

	var result *ModeParseResult
	submitChannel(conn, func() {
		req := ModeParseRequest{
			Channel:    channel,
			Source:     source,
			FromServer: true,
			UWorld:     conn.peerUWorld,
			Force:      true,
			Now:        time.Now().Unix(),
			IsService:  func(nick string) bool { return nickIsService(conn.server, nick) },
			OnUninvite: func() { conn.server.Channels.DropAllInvites(channel) },
		}
		var state BanOverlapState
		result = ParseChannelMode(req, msg.Params[1:], channel.Members().Get, &state)
	})

	if result.Applied == nil || result.Applied.Len() == 0 {
		return
	}
	result.Applied.SetDest(DestOpMode)

	for _, line := range result.Applied.Lines() {
		out := conn.newMessage()
		out.Sender = source
		out.Command = CmdMode
		out.Params = append([]string{channel.Name()}, strings.Fields(line)...)
		channel.Broadcast(out.RenderBuffer(), "")
		msgpool.Recycle(out)
	}

	notice := conn.newMessage()
	notice.Sender = conn.server.Hostname()
	notice.Command = CmdWallops
	notice.Text = result.Applied.WithDest(DestLog).Lines()[0]
	conn.server.Conns.ForEach(func(c *Conn) {
		if c.user != nil && c.user.ModeIsSet(UModeNetOp) {
			c.Write(notice.RenderBuffer())
		}
	})
	msgpool.Recycle(notice)
}

// HandleDesynch processes a DESYNCH notice: a peer's diagnostic report
// that it detected a desync on some state. There's nothing to apply —
// DESYNCH carries no corrective data of its own — so this just routes
// the report to opers the way the original network's DESYNCH handling
// does, via a WALLOPS-style notice.
//
//    Command: DESYNCH
//    Parameters: <channel>
//    Text: <description>
func HandleDesynch(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if !conn.isPeer {
		return
	}

	log.Warnf("irc: DESYNCH reported by peer [%s]: %s %s", conn.peerName, strings.Join(msg.Params, " "), msg.Text)

	notice := conn.newMessage()
	notice.Sender = conn.server.Hostname()
	notice.Command = CmdWallops
	notice.Text = fmt.Sprintf("DESYNCH from %s: %s %s", conn.peerName, strings.Join(msg.Params, " "), msg.Text)
	conn.server.Conns.ForEach(func(c *Conn) {
		if c.user != nil && c.user.ModeIsSet(UModeNetOp) {
			c.Write(notice.RenderBuffer())
		}
	})
	msgpool.Recycle(notice)
}

// HandlePing processes a PING command originated from the client.
//
// The server will respond with the matching ping token.
//
//    Command: PING
//    Parameters: :<token>
func HandlePing(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	msg.Sender = conn.server.Hostname()

	msg.Command = CmdPong

	conn.Write(msg.RenderBuffer())
}

// HandlePong processes a PONG command in reply to a server sent PING command.
//
// Command: PONG
// Parameters: :<token>
func HandlePong(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	if len(msg.Text) < 1 {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	conn.Lock()
	defer conn.Unlock()
	conn.lastPingRecv = msg.Text
}

// RouteCommand accepts an IRC message and routes it to a function
// in which is designed to process the command.
func RouteCommand(conn *Conn, msg *Message) {
	handler, exists := Handlers[msg.Command]

	if !exists {
		conn.ReplyNotImplemented(msg.Command)
		msgpool.Recycle(msg)
		return
	}

	if !conn.registered {
		if msg.Command != CmdPing &&
			msg.Command != CmdPong &&
			msg.Command != CmdCap &&
			msg.Command != CmdPass &&
			msg.Command != CmdNick &&
			msg.Command != CmdUser &&
			msg.Command != CmdServer &&
			msg.Command != CmdQuit {

			conn.ReplyNotRegistered()
			return
		}
	}

	handler(conn, msg)
}

func enoughParams(msg *Message, expected int) bool {
	return !(len(msg.Params) < expected)
}

func registerHandlers() {
	Handlers[CmdQuit] = HandleQuit
	Handlers[CmdNick] = HandleNick
	Handlers[CmdUser] = HandleUser
	Handlers[CmdPing] = HandlePing
	Handlers[CmdPong] = HandlePong
	Handlers[CmdJoin] = HandleJoin
	Handlers[CmdPart] = HandlePart
	Handlers[CmdKick] = HandleKick
	Handlers[CmdMode] = HandleMode
	Handlers[CmdTopic] = HandleTopic
	Handlers[CmdInvite] = HandleInvite
	Handlers[CmdList] = HandleList
	Handlers[CmdNames] = HandleNames
	Handlers[CmdPrivMsg] = HandlePrivmsg
	Handlers[CmdNotice] = HandleNotice
	Handlers[CmdUserhost] = HandleUserhost
	Handlers[CmdServer] = HandleServer
	Handlers[CmdBurst] = HandleBurst
	Handlers[CmdOpMode] = HandleOpMode
	Handlers[CmdDesynch] = HandleDesynch
}
