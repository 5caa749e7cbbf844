// Package audio plays decoded assets through oto with two interchangeable
// backends.
//
// VoicePool mixes every voice into a single Graph stream whose clock is the
// count of rendered frames, so gain envelopes and stop times are exact to
// the frame. ElementPool opens one device player per play and fades with a
// frame ticker. A Selector keeps track of whether the graph output has been
// unlocked and picks the backend; Engine ties the three together.
//
// Devices are either the system output (oto) or MockDevice, which discards
// audio and is used in tests, on CI and on hosts without a sound card.
package audio
