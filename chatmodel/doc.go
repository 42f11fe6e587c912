// Package chatmodel carries the conversation thread identity in context.Context.
package chatmodel
