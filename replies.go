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
	"strconv"

	"github.com/btnmasher/util"
)

// ReplyWelcome returns the configured welcome message to
// the user. This is sent when a client first connects
// and registers successfully.
func (conn *Conn) ReplyWelcome() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyWelcome
	msg.Params = []string{conn.user.Nick()}
	msg.Text = conn.server.Welcome()

	conn.Write(msg.RenderBuffer())
}

// ReplyInvalidCapCommand returns an error message to the user
// in the event that a CAP command issued by the user is not
// a valid subcommand per the IRCv3 CAP specifications.
func (conn *Conn) ReplyInvalidCapCommand(cmd string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	params := []string{nick}

	if cmd != "" {
		params = append(params, cmd)
	}

	msg.Code = ReplyInvalidCapCmd
	msg.Params = params
	msg.Text = ErrInvalidCapCmd.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNeedMoreParams returns an error message to the user
// in the event that a command issued by the user that does
// not satisfy the minimum number of parameters expected of
// the particualar command.
func (conn *Conn) ReplyNeedMoreParams(cmd string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	params := []string{nick}

	if cmd != "" {
		params = append(params, cmd)
	}

	msg.Code = ReplyNeedMoreParams
	msg.Params = params
	msg.Text = ErrMissingParams.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNoNicknameGiven returns an error message to the user
// in the event that a command issued by the user that does
// not satisfy the requirement of specifying a nickname.
func (conn *Conn) ReplyNoNicknameGiven() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	msg.Params = []string{nick}
	msg.Code = ReplyNoNicknameGiven
	msg.Text = ErrNoNickGiven.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNoSuchNick returns an error message to the user
// in the event that a command issued by the user with
// a target nickname cannot find the target or is unable
// to know of the targets existence due to permissions.
func (conn *Conn) ReplyNoSuchNick(nick string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), nick}
	msg.Code = ReplyNoSuchNick
	msg.Text = ErrNoSuchNick.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNoSuchChan returns an error message to the user
// in the event that a command issued by the user with
// a target channel cannot find the target or is unable
// to know of the targets existence due to permissions.
func (conn *Conn) ReplyNoSuchChan(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyNoSuchChannel
	msg.Text = ErrNoSuchChan.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyJoinDenied returns the appropriate numeric for a CanJoinResult
// other than CanJoinOK, per spec.md §4.11's can_join precondition
// chain.
func (conn *Conn) ReplyJoinDenied(channel string, verdict CanJoinResult) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}

	switch verdict {
	case CanJoinInviteOnly:
		msg.Code = ReplyInviteOnlyChan
		msg.Text = ErrInviteOnlyChan.Error()
	case CanJoinFull:
		msg.Code = ReplyChannelIsFull
		msg.Text = ErrChannelIsFull.Error()
	case CanJoinBanned:
		msg.Code = ReplyBannedFromChan
		msg.Text = ErrBannedFromChan.Error()
	case CanJoinBadKey:
		msg.Code = ReplyBadChannelPass
		msg.Text = ErrBadChannelKey.Error()
	default:
		return
	}

	conn.Write(msg.RenderBuffer())
}

// ReplyNotImplemented returns an error message to the user
// in the event the given command is not apart of the handlers
// found in RouteCommand()
func (conn *Conn) ReplyNotImplemented(cmd string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyUnknownCommand
	msg.Params = []string{conn.user.Nick(), cmd}
	msg.Text = ErrNotImplemented.Error()

	log.Infof("irc: Command not implemented encountered for: %s", cmd)

	conn.Write(msg.RenderBuffer())
}

// ReplyNotRegistered returns an error message to the user
// in the event the user issues a command that requires
// completed registration.
func (conn *Conn) ReplyNotRegistered() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	msg.Code = ReplyNotRegistered
	msg.Params = []string{nick}
	msg.Text = ErrNotRegistered.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyChannelTopic returns the topic reply to the user for
// the given channel.
func (conn *Conn) ReplyChannelTopic(channel *Channel) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyChanTopic
	msg.Params = []string{conn.user.Nick(), channel.Name()}
	msg.Text = channel.Topic()
	conn.Write(msg.RenderBuffer())
}

// ReplyChannelNames returns the NAMES list of the given channel to
// the user, followed by the end-of-NAMES reply.
func (conn *Conn) ReplyChannelNames(channel *Channel) {

	nicklist := channel.GetNicks()
	unick := conn.user.Nick()
	cname := channel.Name()
	params := []string{unick, "=", cname}

	temp := conn.newMessage()
	temp.Code = ReplyNames
	temp.Params = params

	joined := util.ChunkJoinStrings(nicklist, MaxMsgLength-len(temp.String()), SPACE)
	msgpool.Recycle(temp)

	msgs := []*Message{}

	for _, line := range joined {
		msg := conn.newMessage()
		defer msgpool.Recycle(msg)

		msgs = append(msgs, msg)

		msg.Code = ReplyNames
		msg.Params = params
		msg.Text = line
	}

	end := conn.newMessage()
	end.Code = ReplyEndOfNames
	end.Params = []string{unick, cname}
	end.Text = "End of NAMES list."
	msgs = append(msgs, end)

	for _, m := range msgs {
		conn.Write(m.RenderBuffer())
	}
}

// ReplyNoTopic tells the user channel currently has no topic set.
func (conn *Conn) ReplyNoTopic(channel *Channel) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyNoTopic
	msg.Params = []string{conn.user.Nick(), channel.Name()}
	msg.Text = "No topic is set"
	conn.Write(msg.RenderBuffer())
}

// ReplyInviting confirms to the inviter that nick was invited to channel.
func (conn *Conn) ReplyInviting(channel, nick string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyInviting
	msg.Params = []string{conn.user.Nick(), nick, channel}
	conn.Write(msg.RenderBuffer())
}

// ReplyUserOnChannel tells the user that nick is already a member of channel.
func (conn *Conn) ReplyUserOnChannel(nick, channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyUserOnChannel
	msg.Params = []string{conn.user.Nick(), nick, channel}
	msg.Text = "is already on channel"
	conn.Write(msg.RenderBuffer())
}

// ReplyNotOnChannel tells the user they aren't a member of channel,
// required for a command (PART/MODE/TOPIC) that targets it.
func (conn *Conn) ReplyNotOnChannel(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyNotOnChannel
	msg.Params = []string{conn.user.Nick(), channel}
	msg.Text = "You're not on that channel"
	conn.Write(msg.RenderBuffer())
}

// ReplyUserNotInChannel tells the user that nick isn't a member of
// channel, used by KICK when the named target isn't present.
func (conn *Conn) ReplyUserNotInChannel(nick, channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyUserNotInChannel
	msg.Params = []string{conn.user.Nick(), nick, channel}
	msg.Text = ErrNotOnChannel.Error()
	conn.Write(msg.RenderBuffer())
}

// ReplyChanOpPrivsNeeded tells the user they must be a channel operator
// on channel to carry out the command they just issued.
func (conn *Conn) ReplyChanOpPrivsNeeded(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyChanOpPrivsNeeded
	msg.Params = []string{conn.user.Nick(), channel}
	msg.Text = ErrChanOpsNeeded.Error()
	conn.Write(msg.RenderBuffer())
}

// ReplyModeError renders one of modeparse.go's accumulated Errors as
// the numeric its Error value corresponds to.
func (conn *Conn) ReplyModeError(channel string, err Error) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}

	switch err {
	case ErrChanOpsNeeded:
		msg.Code = ReplyChanOpPrivsNeeded
	case ErrNotOnChannel:
		msg.Code = ReplyUserNotInChannel
	case ErrKeySet:
		msg.Code = ReplyChanPassAlreadySet
	case ErrBanListFull:
		msg.Code = ReplyBanListFUll
	default:
		msg.Code = ReplyUnknownMode
	}
	msg.Text = err.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyChannelModeIs answers a bare MODE <channel> query with the
// channel's current simple modes and any key/limit parameters.
func (conn *Conn) ReplyChannelModeIs(channel *Channel) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	params := []string{conn.user.Nick(), channel.Name(), channel.Modes().String()}
	if channel.Modes().Has(ModeLimit) {
		params = append(params, strconv.Itoa(channel.Modes().Limit()))
	}
	if channel.Modes().Key() != "" {
		params = append(params, channel.Modes().Key())
	}

	msg.Code = ReplyChannelModeIs
	msg.Params = params
	conn.Write(msg.RenderBuffer())
}

// ReplyBanList sends the channel's ban list, one 367 line per ban
// followed by a 368 end-of-list line.
func (conn *Conn) ReplyBanList(channel *Channel) {
	nick := conn.user.Nick()
	cname := channel.Name()

	for _, b := range channel.Bans().All() {
		msg := conn.newMessage()
		msg.Code = ReplyBanList
		msg.Params = []string{nick, cname, b.Mask, b.Setter}
		msg.Text = strconv.FormatInt(b.Set, 10)
		conn.Write(msg.RenderBuffer())
		msgpool.Recycle(msg)
	}

	end := conn.newMessage()
	end.Code = ReplyEndOfBanList
	end.Params = []string{nick, cname}
	end.Text = "End of channel ban list"
	conn.Write(end.RenderBuffer())
	msgpool.Recycle(end)
}

// ReplyInviteList sends the list of nicks currently holding an invite
// to channel, one 346 line per nick followed by a 347 end-of-list line.
func (conn *Conn) ReplyInviteList(channel *Channel, nicks []string) {
	nick := conn.user.Nick()
	cname := channel.Name()

	for _, invited := range nicks {
		msg := conn.newMessage()
		msg.Code = ReplyInviteList
		msg.Params = []string{nick, cname, invited}
		conn.Write(msg.RenderBuffer())
		msgpool.Recycle(msg)
	}

	end := conn.newMessage()
	end.Code = ReplyEndOfInviteList
	end.Params = []string{nick, cname}
	end.Text = "End of channel invite list"
	conn.Write(end.RenderBuffer())
	msgpool.Recycle(end)
}

// ReplyListStart announces the start of a LIST reply.
func (conn *Conn) ReplyListStart() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyListStart
	msg.Params = []string{conn.user.Nick(), "Channel"}
	msg.Text = "Users Name"
	conn.Write(msg.RenderBuffer())
}

// ReplyList sends one LIST entry for channel.
func (conn *Conn) ReplyList(channel *Channel) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyList
	msg.Params = []string{conn.user.Nick(), channel.Name(), strconv.Itoa(channel.Members().NonZombieLen())}
	msg.Text = "[" + channel.Modes().String() + "] " + channel.Topic()
	conn.Write(msg.RenderBuffer())
}

// ReplyEndOfList closes a LIST reply.
func (conn *Conn) ReplyEndOfList() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyEndOfList
	msg.Params = []string{conn.user.Nick()}
	msg.Text = "End of LIST"
	conn.Write(msg.RenderBuffer())
}

// ReplyISupport returns the server's ISUPPORT tokens to the user.
func (conn *Conn) ReplyISupport() {

	support := conn.server.ISupport()
	params := []string{conn.user.Nick()}

	temp := conn.newMessage()
	temp.Code = ReplyISupport
	temp.Params = params

	joined := util.ChunkJoinStrings(support, MaxMsgLength-len(temp.String()), SPACE)
	msgpool.Recycle(temp)

	msgs := []*Message{}

	for _, line := range joined {
		msg := conn.newMessage()
		defer msgpool.Recycle(msg)

		msg.Code = ReplyISupport
		msg.Params = append(params, line)

		msgs = append(msgs, msg)
	}

	for _, m := range msgs {
		conn.Write(m.RenderBuffer())
	}
}
